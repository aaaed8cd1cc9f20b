package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketmap-cli/internal/model"
	"github.com/sells-group/marketmap-cli/pkg/meili"
)

type mockMeili struct{ mock.Mock }

func (m *mockMeili) CreateIndex(ctx context.Context, uid, primaryKey string) (*meili.TaskInfo, error) {
	args := m.Called(ctx, uid, primaryKey)
	i, _ := args.Get(0).(*meili.TaskInfo)
	return i, args.Error(1)
}

func (m *mockMeili) UpdateSettings(ctx context.Context, uid string, s meili.Settings) (*meili.TaskInfo, error) {
	args := m.Called(ctx, uid, s)
	i, _ := args.Get(0).(*meili.TaskInfo)
	return i, args.Error(1)
}

func (m *mockMeili) DeleteAllDocuments(ctx context.Context, uid string) (*meili.TaskInfo, error) {
	args := m.Called(ctx, uid)
	i, _ := args.Get(0).(*meili.TaskInfo)
	return i, args.Error(1)
}

func (m *mockMeili) AddDocuments(ctx context.Context, uid string, docs any, primaryKey string) (*meili.TaskInfo, error) {
	args := m.Called(ctx, uid, docs, primaryKey)
	i, _ := args.Get(0).(*meili.TaskInfo)
	return i, args.Error(1)
}

func (m *mockMeili) GetTask(ctx context.Context, taskUID int64) (*meili.Task, error) {
	args := m.Called(ctx, taskUID)
	t, _ := args.Get(0).(*meili.Task)
	return t, args.Error(1)
}

func (m *mockMeili) WaitForTask(ctx context.Context, taskUID int64) (*meili.Task, error) {
	args := m.Called(ctx, taskUID)
	t, _ := args.Get(0).(*meili.Task)
	return t, args.Error(1)
}

func succeeded(uid int64) *meili.Task { return &meili.Task{UID: uid, Status: meili.TaskSucceeded} }

func TestPublish_Sequence(t *testing.T) {
	docs := []model.Document{{ID: "gouda-markt"}}
	mc := &mockMeili{}
	var order []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { order = append(order, name) }
	}

	mc.On("CreateIndex", mock.Anything, "markets", "id").Run(record("create")).Return(&meili.TaskInfo{TaskUID: 1}, nil)
	mc.On("WaitForTask", mock.Anything, int64(1)).Return(&meili.Task{UID: 1, Status: meili.TaskFailed,
		Error: &meili.TaskError{Code: meili.CodeIndexAlreadyExists}}, nil)
	mc.On("UpdateSettings", mock.Anything, "markets", IndexSettings()).Run(record("settings")).Return(&meili.TaskInfo{TaskUID: 2}, nil)
	mc.On("WaitForTask", mock.Anything, int64(2)).Return(succeeded(2), nil)
	mc.On("DeleteAllDocuments", mock.Anything, "markets").Run(record("delete")).Return(&meili.TaskInfo{TaskUID: 3}, nil)
	mc.On("WaitForTask", mock.Anything, int64(3)).Return(succeeded(3), nil)
	mc.On("AddDocuments", mock.Anything, "markets", docs, "id").Run(record("add")).Return(&meili.TaskInfo{TaskUID: 4}, nil)
	mc.On("WaitForTask", mock.Anything, int64(4)).Return(succeeded(4), nil)

	sum, err := NewPublisher(mc, "").Publish(context.Background(), docs)
	require.NoError(t, err)
	mc.AssertExpectations(t)
	assert.Equal(t, []string{"create", "settings", "delete", "add"}, order)
	assert.Equal(t, &PublishSummary{Index: "markets", Documents: 1, TaskStatus: meili.TaskSucceeded}, sum)
}

func TestPublish_AlreadyExistsAsAPIError(t *testing.T) {
	mc := &mockMeili{}
	mc.On("CreateIndex", mock.Anything, "markets", "id").Return(nil, &meili.APIError{StatusCode: 409, Code: meili.CodeIndexAlreadyExists})
	mc.On("UpdateSettings", mock.Anything, "markets", mock.Anything).Return(&meili.TaskInfo{TaskUID: 2}, nil)
	mc.On("DeleteAllDocuments", mock.Anything, "markets").Return(&meili.TaskInfo{TaskUID: 3}, nil)
	mc.On("AddDocuments", mock.Anything, "markets", mock.Anything, "id").Return(&meili.TaskInfo{TaskUID: 4}, nil)
	mc.On("WaitForTask", mock.Anything, mock.Anything).Return(succeeded(0), nil)

	_, err := NewPublisher(mc, "markets").Publish(context.Background(), nil)
	require.NoError(t, err)
}

func TestPublish_FailedTaskIsError(t *testing.T) {
	mc := &mockMeili{}
	mc.On("CreateIndex", mock.Anything, "markets", "id").Return(&meili.TaskInfo{TaskUID: 1}, nil)
	mc.On("WaitForTask", mock.Anything, int64(1)).Return(succeeded(1), nil)
	mc.On("UpdateSettings", mock.Anything, "markets", mock.Anything).Return(&meili.TaskInfo{TaskUID: 2}, nil)
	mc.On("WaitForTask", mock.Anything, int64(2)).Return(&meili.Task{UID: 2, Status: meili.TaskFailed,
		Error: &meili.TaskError{Code: "invalid_settings_filterable_attributes", Message: "bad"}}, nil)

	_, err := NewPublisher(mc, "markets").Publish(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_settings_filterable_attributes")
	mc.AssertNotCalled(t, "DeleteAllDocuments", mock.Anything, mock.Anything)
}
