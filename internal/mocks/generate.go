// Package mocks provides mock implementations for testing the scrapewatch monitor.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our
// port interfaces. The mocks are generated using go:generate directives and provide
// a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockClient := mocks.NewMockPlatformClient(ctrl)
//	mockClient.EXPECT().GetStatus(gomock.Any(), "job-1").Return(status, nil)
package mocks

// Generate mock for PlatformClient interface from internal/core package.
// This creates MockPlatformClient with methods for all PlatformClient interface methods:
// GetStatus, ListItems, Resurrect, Abort
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=platform_client_mock.go github.com/audiencelab/scrapewatch/internal/core PlatformClient

// Generate mock for RunRepository interface from internal/core package.
// This creates MockRunRepository with methods for all RunRepository interface methods:
// GetByID, ListNeedingAttention, UpdateStatus, MarkResurrected, ResetResurrectCount,
// UpdateItemsCount, Summary
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_repository_mock.go github.com/audiencelab/scrapewatch/internal/core RunRepository
