// Package mocks provides mock implementations for testing the engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mocks for the job queue ports: JobRepository and ReaperRepository.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/croniumhq/cronium-engine/internal/core JobRepository,ReaperRepository

// Generate mocks for the workflow ports: graph store, execution store, fan-out coordinator and event resolution.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=workflow_mock.go github.com/croniumhq/cronium-engine/internal/core WorkflowRepository,ExecutionRepository,WorkflowCoordinator,EventResolver

// Generate mocks for the boundary gateways: broadcast, variable storage and script execution.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=gateway_mock.go github.com/croniumhq/cronium-engine/internal/core BroadcastGateway,VariableStore,ScriptExecutor
