// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	rserrors "github.com/openchami/reportsmith/pkg/errors"
	"github.com/openchami/reportsmith/pkg/token"
)

// PolicyTestSuite runs table-driven checks against any Engine
type PolicyTestSuite struct {
	Engine Engine
	Name   string
}

// NewPolicyTestSuite creates a new policy test suite
func NewPolicyTestSuite(engine Engine, name string) *PolicyTestSuite {
	return &PolicyTestSuite{
		Engine: engine,
		Name:   name,
	}
}

// TestCase represents a single policy test case
type TestCase struct {
	Name    string
	Request *Request
	// ExpectAllowed is the expected Decision.Allowed
	ExpectAllowed bool
	// ExpectCode is the expected error code of a denial
	ExpectCode rserrors.ErrorCode
	// ExpectMessage, when set, is the expected public message of a denial
	ExpectMessage string
}

// PolicyTestResult represents the result of a policy test
type PolicyTestResult struct {
	TestCase TestCase
	Actual   *Decision
	Error    error
	Duration time.Duration
	Passed   bool
	Message  string
}

// RunTestCase runs a single test case and returns the result
func (pts *PolicyTestSuite) RunTestCase(ctx context.Context, testCase TestCase) *PolicyTestResult {
	start := time.Now()
	actual, err := pts.Engine.Evaluate(ctx, testCase.Request)

	result := &PolicyTestResult{
		TestCase: testCase,
		Actual:   actual,
		Error:    err,
		Duration: time.Since(start),
	}

	switch {
	case actual == nil:
		result.Message = fmt.Sprintf("Expected a decision, got error: %v", err)
	case actual.Allowed != testCase.ExpectAllowed:
		result.Message = fmt.Sprintf("Expected allowed=%v, got %v", testCase.ExpectAllowed, actual.Allowed)
	case testCase.ExpectAllowed && err != nil:
		result.Message = fmt.Sprintf("Unexpected error: %v", err)
	case !testCase.ExpectAllowed && rserrors.GetErrorCode(err) != testCase.ExpectCode:
		result.Message = fmt.Sprintf("Expected code %s, got %s", testCase.ExpectCode, rserrors.GetErrorCode(err))
	case testCase.ExpectMessage != "" && rserrors.PublicMessage(err) != testCase.ExpectMessage:
		result.Message = fmt.Sprintf("Expected message %q, got %q", testCase.ExpectMessage, rserrors.PublicMessage(err))
	default:
		result.Passed = true
		result.Message = "Test passed"
	}
	return result
}

// RunTestSuite runs all test cases and returns results
func (pts *PolicyTestSuite) RunTestSuite(ctx context.Context, testCases []TestCase) []*PolicyTestResult {
	results := make([]*PolicyTestResult, len(testCases))
	for i, testCase := range testCases {
		results[i] = pts.RunTestCase(ctx, testCase)
	}
	return results
}

// RunTestSuiteWithT runs test cases using Go's testing framework
func (pts *PolicyTestSuite) RunTestSuiteWithT(t *testing.T, testCases []TestCase) {
	results := pts.RunTestSuite(context.Background(), testCases)

	for _, result := range results {
		t.Run(result.TestCase.Name, func(t *testing.T) {
			if !result.Passed {
				t.Errorf("%s: %s", pts.Name, result.Message)
			}
		})
	}
}

// TestDataFactory provides utilities for creating test data
type TestDataFactory struct{}

// NewTestDataFactory creates a new test data factory
func NewTestDataFactory() *TestDataFactory {
	return &TestDataFactory{}
}

// CreateClaims creates a verified-looking claim set holding roles
func (tdf *TestDataFactory) CreateClaims(username string, roles ...string) *token.Claims {
	return &token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username + "-id",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		PreferredUsername: username,
		RealmAccess:       token.Access{Roles: roles},
	}
}

// CreateRequest creates a GET request for resource by a caller holding roles
func (tdf *TestDataFactory) CreateRequest(resource string, roles ...string) *Request {
	return &Request{
		Claims:   tdf.CreateClaims("alice", roles...),
		Resource: resource,
		Action:   http.MethodGet,
	}
}

// BenchmarkPolicyEngine benchmarks a policy engine
func BenchmarkPolicyEngine(b *testing.B, engine Engine, req *Request) {
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Evaluate(ctx, req); err != nil {
			b.Fatalf("Policy evaluation failed: %v", err)
		}
	}
}
