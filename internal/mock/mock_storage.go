package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

// Put mocks the Put method.
func (m *MockStorage) Put(ctx context.Context, key string, r io.Reader) error {
	args := m.Called(ctx, key, r)
	return args.Error(0)
}

// Get mocks the Get method.
func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Exists mocks the Exists method.
func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// Delete mocks the Delete method.
func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// URL mocks the URL method.
func (m *MockStorage) URL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

// ExpectPut sets up an expectation for Put.
func (m *MockStorage) ExpectPut(key string, err error) *mock.Call {
	return m.On("Put", mock.Anything, key, mock.Anything).Return(err)
}

// ExpectGet sets up an expectation for Get.
func (m *MockStorage) ExpectGet(key string, rc io.ReadCloser, err error) *mock.Call {
	return m.On("Get", mock.Anything, key).Return(rc, err)
}
