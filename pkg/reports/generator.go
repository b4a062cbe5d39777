// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package reports

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// DefaultReportCount is the number of reports returned per request
const DefaultReportCount = 10

const day = 24 * time.Hour

// Generator produces random reports. It is not safe for concurrent use
// unless its random source is; NewGenerator's default source is.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithSource replaces the random source, typically with a seeded one
func WithSource(src rand.Source) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(src)
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator backed by the runtime's random source
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		rng: rand.New(runtimeSource{}),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// runtimeSource draws from the global generator, which is safe for
// concurrent use.
type runtimeSource struct{}

func (runtimeSource) Uint64() uint64 { return rand.Uint64() }

// Generate returns n reports with ids prosthetic-1 through prosthetic-n
func (g *Generator) Generate(n int) ([]Report, error) {
	if n < 0 {
		return nil, fmt.Errorf("report count must not be negative, got %d", n)
	}

	now := g.now().UTC()
	reports := make([]Report, 0, n)
	for i := 1; i <= n; i++ {
		reports = append(reports, g.report(i, now))
	}
	return reports, nil
}

func (g *Generator) report(i int, now time.Time) Report {
	kind := ProstheticTypes[g.rng.IntN(len(ProstheticTypes))]
	status := Statuses[g.rng.IntN(len(Statuses))]
	dailyHours := g.between(2, 13)
	weeklySteps := g.between(5000, 54999)

	usage := Usage{
		DailyHours:      dailyHours,
		WeeklySteps:     weeklySteps,
		MonthlyDistance: g.between(20, 219),
		ComfortLevel:    g.between(1, 10),
		LastCalibration: g.before(now, 7*day),
	}
	activities := ActivityData{
		PrimaryActivity:   Activities[g.rng.IntN(len(Activities))],
		ActivityFrequency: g.between(20, 119),
	}

	switch kind {
	case UpperLimb:
		usage.BatteryLife = ptr(g.between(8, 31))
		activities.MaxWeightLifted = ptr(g.between(5, 54))
	case LowerLimb:
		activities.WalkingSpeed = ptr(fmt.Sprintf("%.1f", g.rng.Float64()*2+0.5))
	case Hand:
		activities.GripStrength = ptr(g.between(20, 119))
	}

	return Report{
		ID:        fmt.Sprintf("prosthetic-%d", i),
		Name:      fmt.Sprintf("%s Prosthetic Report %d", displayName(kind), i),
		Type:      kind,
		Status:    status,
		CreatedAt: g.before(now, 30*day),
		Data: ReportData{
			Usage:      usage,
			Activities: activities,
			Maintenance: Maintenance{
				LastService:      g.before(now, 90*day),
				NextServiceDue:   g.after(now, 30*day),
				WearLevel:        g.between(1, 100),
				AdjustmentNeeded: g.rng.Float64() > 0.7,
				PartsReplacement: g.rng.Float64() > 0.8,
			},
			UserFeedback: UserFeedback{
				Satisfaction:        g.between(1, 5),
				PainLevel:           g.between(1, 10),
				MobilityImprovement: g.between(20, 69),
				IndependenceLevel:   g.between(60, 99),
			},
		},
		Summary: fmt.Sprintf("Usage report for a %q prosthetic, user %d. Worn %d hours a day, %d steps a week. Comfort level: %d/10.",
			kind, i, dailyHours, weeklySteps, g.between(1, 10)),
	}
}

// between returns an int in [lo, hi]
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

func (g *Generator) before(now time.Time, window time.Duration) time.Time {
	return now.Add(-time.Duration(g.rng.Int64N(int64(window))))
}

func (g *Generator) after(now time.Time, window time.Duration) time.Time {
	return now.Add(time.Duration(g.rng.Int64N(int64(window))))
}

func displayName(kind ProstheticType) string {
	name := string(kind)
	return strings.ToUpper(name[:1]) + name[1:]
}

func ptr[T any](v T) *T {
	return &v
}
