// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package reports synthesizes prosthetic usage reports and serves them to
// authorized callers.
package reports

import "time"

// ProstheticType is the category of a prosthetic device
type ProstheticType string

const (
	UpperLimb ProstheticType = "upper_limb"
	LowerLimb ProstheticType = "lower_limb"
	Hand      ProstheticType = "hand"
	Foot      ProstheticType = "foot"
	Knee      ProstheticType = "knee"
	Hip       ProstheticType = "hip"
)

// ProstheticTypes lists every type a report can carry
var ProstheticTypes = []ProstheticType{UpperLimb, LowerLimb, Hand, Foot, Knee, Hip}

// Status is the service state of a device
type Status string

const (
	StatusActive            Status = "active"
	StatusMaintenance       Status = "maintenance"
	StatusReplacementNeeded Status = "replacement_needed"
)

// Statuses lists every status a report can carry
var Statuses = []Status{StatusActive, StatusMaintenance, StatusReplacementNeeded}

// Activities lists the primary activities a report can name
var Activities = []string{"walking", "running", "lifting", "grasping", "climbing", "swimming"}

// Report is one synthetic device report
type Report struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      ProstheticType `json:"type"`
	Status    Status         `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	Data      ReportData     `json:"data"`
	Summary   string         `json:"summary"`
}

// ReportData groups the measured sections of a report
type ReportData struct {
	Usage        Usage        `json:"usage"`
	Activities   ActivityData `json:"activities"`
	Maintenance  Maintenance  `json:"maintenance"`
	UserFeedback UserFeedback `json:"userFeedback"`
}

// Usage describes how much the device is worn. BatteryLife is only set for
// powered upper limb devices.
type Usage struct {
	DailyHours      int       `json:"dailyHours"`
	WeeklySteps     int       `json:"weeklySteps"`
	MonthlyDistance int       `json:"monthlyDistance"`
	ComfortLevel    int       `json:"comfortLevel"`
	BatteryLife     *int      `json:"batteryLife"`
	LastCalibration time.Time `json:"lastCalibration"`
}

// ActivityData holds type specific performance figures; fields that do not
// apply to the device type are null.
type ActivityData struct {
	PrimaryActivity   string  `json:"primaryActivity"`
	ActivityFrequency int     `json:"activityFrequency"`
	MaxWeightLifted   *int    `json:"maxWeightLifted"`
	WalkingSpeed      *string `json:"walkingSpeed"`
	GripStrength      *int    `json:"gripStrength"`
}

type Maintenance struct {
	LastService      time.Time `json:"lastService"`
	NextServiceDue   time.Time `json:"nextServiceDue"`
	WearLevel        int       `json:"wearLevel"`
	AdjustmentNeeded bool      `json:"adjustmentNeeded"`
	PartsReplacement bool      `json:"partsReplacement"`
}

type UserFeedback struct {
	Satisfaction        int `json:"satisfaction"`
	PainLevel           int `json:"painLevel"`
	MobilityImprovement int `json:"mobilityImprovement"`
	IndependenceLevel   int `json:"independenceLevel"`
}
