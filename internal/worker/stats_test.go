package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quackscribe/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUsageWriter struct {
	mock.Mock
}

func (m *MockUsageWriter) AddUsage(ctx context.Context, userID, seconds int64) error {
	args := m.Called(ctx, userID, seconds)
	return args.Error(0)
}

func eventBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(model.UsageEvent{
		EventID:            "evt-1",
		UserID:             55,
		ChatID:             100,
		TaskType:           model.TaskTranscribe,
		TranscribedSeconds: 42,
		CreatedAt:          time.Now(),
	})
	require.NoError(t, err)
	return body
}

func TestHandleEvent_RecordsUsage(t *testing.T) {
	db := new(MockUsageWriter)
	consumer := NewStatsConsumer(db)

	db.On("AddUsage", mock.Anything, int64(55), int64(42)).Return(nil)

	err := consumer.HandleEvent(eventBody(t))

	assert.NoError(t, err)
	db.AssertExpectations(t)
}

func TestHandleEvent_MalformedEventIsDropped(t *testing.T) {
	db := new(MockUsageWriter)
	consumer := NewStatsConsumer(db)

	err := consumer.HandleEvent([]byte("{not json"))

	assert.NoError(t, err, "malformed events must be dropped, not requeued")
	db.AssertNotCalled(t, "AddUsage", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_WriteFailureRequeues(t *testing.T) {
	db := new(MockUsageWriter)
	consumer := NewStatsConsumer(db)

	db.On("AddUsage", mock.Anything, int64(55), int64(42)).Return(errors.New("database down"))

	err := consumer.HandleEvent(eventBody(t))

	assert.Error(t, err, "a failed write must surface so the delivery is requeued")
}
