// Package mocks provides mock implementations for testing the tenantscan job engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in internal/core.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, Complete, Fail, Delete, ArchiveCompletion, TakeTerminal, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/tenantscan/internal/core JobRepository

// Generate mock for ReaperRepository interface from internal/core package.
// This creates MockReaperRepository with methods: FailStaleRunningJobs, DeleteOldJobs
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/tenantscan/internal/core ReaperRepository

// Generate mock for WorkerLauncher interface from internal/core package.
// This creates MockWorkerLauncher with methods: Launch, Reap, ReapExited, Running
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=worker_launcher_mock.go github.com/target/tenantscan/internal/core WorkerLauncher

// Generate mock for ConnectionAcquirer interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=connection_acquirer_mock.go github.com/target/tenantscan/internal/core ConnectionAcquirer

// Generate mock for ScanEngine interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=scan_engine_mock.go github.com/target/tenantscan/internal/core ScanEngine
