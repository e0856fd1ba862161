package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jacoco-filter/internal/repository"
)

// MockRunRepository is a mock implementation of repository.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

// CreateRun mocks the CreateRun method.
func (m *MockRunRepository) CreateRun(ctx context.Context, run *repository.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

// FinishRun mocks the FinishRun method.
func (m *MockRunRepository) FinishRun(ctx context.Context, run *repository.Run, classes []repository.RunClass) error {
	args := m.Called(ctx, run, classes)
	return args.Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*repository.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Run), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]*repository.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Run), args.Error(1)
}

// ListRunClasses mocks the ListRunClasses method.
func (m *MockRunRepository) ListRunClasses(ctx context.Context, runID string) ([]repository.RunClass, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.RunClass), args.Error(1)
}

// ExpectCreateRun sets up an expectation for any CreateRun call.
func (m *MockRunRepository) ExpectCreateRun(err error) *mock.Call {
	return m.On("CreateRun", mock.Anything, mock.Anything).Return(err)
}

// ExpectFinishRun sets up an expectation for any FinishRun call.
func (m *MockRunRepository) ExpectFinishRun(err error) *mock.Call {
	return m.On("FinishRun", mock.Anything, mock.Anything, mock.Anything).Return(err)
}
