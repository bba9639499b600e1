package transcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"quackscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockKV struct {
	mock.Mock
}

func (m *MockKV) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	args := m.Called(ctx, key, field)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockKV) HashSet(ctx context.Context, key, field, value string) error {
	args := m.Called(ctx, key, field, value)
	return args.Error(0)
}

func (m *MockKV) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func (m *MockKV) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKV) Close() error {
	args := m.Called()
	return args.Error(0)
}

const rowKey = "transcript:abc123"

func TestGet_Found(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "transcribe").Return("hello world", true, nil)

	lookup, err := store.Get(ctx, "abc123", model.TaskTranscribe)

	assert.NoError(t, err)
	assert.Equal(t, Found, lookup.State)
	assert.Equal(t, "hello world", lookup.Text)
	kv.AssertExpectations(t)
}

func TestGet_ExistsForOtherTask(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "translate").Return("", false, nil)
	kv.On("Exists", ctx, rowKey).Return(true, nil)

	lookup, err := store.Get(ctx, "abc123", model.TaskTranslate)

	assert.NoError(t, err)
	assert.Equal(t, ExistsForOtherTask, lookup.State)
	assert.Empty(t, lookup.Text)
	kv.AssertExpectations(t)
}

func TestGet_Absent(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "transcribe").Return("", false, nil)
	kv.On("Exists", ctx, rowKey).Return(false, nil)

	lookup, err := store.Get(ctx, "abc123", model.TaskTranscribe)

	assert.NoError(t, err)
	assert.Equal(t, Absent, lookup.State)
	kv.AssertExpectations(t)
}

func TestGet_BackendError(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "transcribe").Return("", false, errors.New("connection refused"))

	_, err := store.Get(ctx, "abc123", model.TaskTranscribe)

	assert.Error(t, err)
}

func TestPutNew_InsertsAndSetsTTL(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("Exists", ctx, rowKey).Return(false, nil)
	kv.On("HashSet", ctx, rowKey, "transcribe", "hello").Return(nil)
	kv.On("Expire", ctx, rowKey, DefaultTTL).Return(nil)

	err := store.PutNew(ctx, "abc123", model.TaskTranscribe, "hello")

	assert.NoError(t, err)
	kv.AssertExpectations(t)
}

func TestPutNew_FailsWhenRowExists(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("Exists", ctx, rowKey).Return(true, nil)

	err := store.PutNew(ctx, "abc123", model.TaskTranscribe, "hello")

	assert.ErrorIs(t, err, ErrRowExists)
	kv.AssertNotCalled(t, "HashSet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateExisting_RefreshesTTL(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashSet", ctx, rowKey, "summarize", "a summary").Return(nil)
	kv.On("Expire", ctx, rowKey, DefaultTTL).Return(nil)

	err := store.UpdateExisting(ctx, "abc123", model.TaskSummarize, "a summary")

	assert.NoError(t, err)
	kv.AssertExpectations(t)
}

func TestSmartPut_InsertsWhenAbsent(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "transcribe").Return("", false, nil)
	kv.On("Exists", ctx, rowKey).Return(false, nil)
	kv.On("HashSet", ctx, rowKey, "transcribe", "hello").Return(nil)
	kv.On("Expire", ctx, rowKey, DefaultTTL).Return(nil)

	err := store.SmartPut(ctx, "abc123", model.TaskTranscribe, "hello")

	assert.NoError(t, err)
	kv.AssertExpectations(t)
}

func TestSmartPut_UpdatesWhenRowExistsForOtherTask(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, DefaultTTL)
	ctx := context.Background()

	kv.On("HashGet", ctx, rowKey, "translate").Return("", false, nil)
	kv.On("Exists", ctx, rowKey).Return(true, nil).Once()
	kv.On("HashSet", ctx, rowKey, "translate", "translated").Return(nil)
	kv.On("Expire", ctx, rowKey, DefaultTTL).Return(nil)

	err := store.SmartPut(ctx, "abc123", model.TaskTranslate, "translated")

	assert.NoError(t, err)
	kv.AssertExpectations(t)
}

func TestNew_ZeroTTLUsesDefault(t *testing.T) {
	kv := new(MockKV)
	store := New(kv, 0)
	ctx := context.Background()

	kv.On("HashSet", ctx, rowKey, "transcribe", "x").Return(nil)
	kv.On("Expire", ctx, rowKey, DefaultTTL).Return(nil)

	err := store.UpdateExisting(ctx, "abc123", model.TaskTranscribe, "x")

	assert.NoError(t, err)
	kv.AssertExpectations(t)
}
