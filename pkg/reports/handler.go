// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package reports

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/logging"
	"github.com/openchami/reportsmith/middleware"
)

// User echoes the caller's identity claims
type User struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// Response is the body of a successful GET /reports
type Response struct {
	Success   bool      `json:"success"`
	Data      []Report  `json:"data"`
	User      User      `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportSource produces the reports for one response. Generator implements it.
type ReportSource interface {
	Generate(n int) ([]Report, error)
}

// Handler serves GET /reports. It expects middleware.Authenticate and
// middleware.Authorize to have run.
type Handler struct {
	source ReportSource
	count  int
	now    func() time.Time
}

// NewHandler creates a Handler returning DefaultReportCount reports from source
func NewHandler(source ReportSource) *Handler {
	if source == nil {
		source = NewGenerator()
	}
	return &Handler{source: source, count: DefaultReportCount, now: time.Now}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.NewStructuredLoggerFromContext(r.Context(), "reports")

	claims, err := middleware.GetClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, r, rserrors.Wrap(err, rserrors.ErrCodeUnauthorized, "no claims in request context"))
		return
	}

	reports, err := h.generate()
	if err != nil {
		logger.WithError(err).Error("Failed to generate reports")
		middleware.WriteJSONError(w, r, http.StatusInternalServerError, rserrors.MsgInternal)
		return
	}

	roles := claims.RealmRoles()
	if roles == nil {
		roles = []string{}
	}

	render.JSON(w, r, Response{
		Success: true,
		Data:    reports,
		User: User{
			Username: claims.PreferredUsername,
			Email:    claims.Email,
			Roles:    roles,
		},
		Timestamp: h.now().UTC(),
	})
}

// generate converts a panicking source into an error
func (h *Handler) generate() (reports []Report, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("report generation panicked: %v", p)
		}
	}()
	return h.source.Generate(h.count)
}
