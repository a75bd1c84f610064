package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/perf-snapshot/internal/repository"
	"github.com/perf-snapshot/pkg/model"
)

// MockSnapshotRepository is a mock implementation of the SnapshotRepository interface.
type MockSnapshotRepository struct {
	mock.Mock
}

// Create mocks the Create method.
func (m *MockSnapshotRepository) Create(ctx context.Context, info *model.SnapshotInfo) error {
	args := m.Called(ctx, info)
	return args.Error(0)
}

// GetByUUID mocks the GetByUUID method.
func (m *MockSnapshotRepository) GetByUUID(ctx context.Context, uuid string) (*model.SnapshotInfo, error) {
	args := m.Called(ctx, uuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SnapshotInfo), args.Error(1)
}

// List mocks the List method.
func (m *MockSnapshotRepository) List(ctx context.Context, opts repository.ListOptions) ([]*model.SnapshotInfo, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SnapshotInfo), args.Error(1)
}

// Delete mocks the Delete method.
func (m *MockSnapshotRepository) Delete(ctx context.Context, uuid string) error {
	args := m.Called(ctx, uuid)
	return args.Error(0)
}

// ExpectCreate sets up an expectation for Create with any snapshot.
func (m *MockSnapshotRepository) ExpectCreate(err error) *mock.Call {
	return m.On("Create", mock.Anything, mock.AnythingOfType("*model.SnapshotInfo")).Return(err)
}

// ExpectGetByUUID sets up an expectation for GetByUUID.
func (m *MockSnapshotRepository) ExpectGetByUUID(uuid string, info *model.SnapshotInfo, err error) *mock.Call {
	return m.On("GetByUUID", mock.Anything, uuid).Return(info, err)
}

// ExpectList sets up an expectation for List.
func (m *MockSnapshotRepository) ExpectList(opts repository.ListOptions, infos []*model.SnapshotInfo, err error) *mock.Call {
	return m.On("List", mock.Anything, opts).Return(infos, err)
}

// ExpectDelete sets up an expectation for Delete.
func (m *MockSnapshotRepository) ExpectDelete(uuid string, err error) *mock.Call {
	return m.On("Delete", mock.Anything, uuid).Return(err)
}
