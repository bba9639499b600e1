package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quackscribe/internal/gate"
	"quackscribe/internal/orchestrator"
	"quackscribe/internal/transcache"
	"quackscribe/pkg/model"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type stubCache struct {
	lookup transcache.Lookup
}

func (s stubCache) Get(ctx context.Context, contentID string, task model.TaskType) (transcache.Lookup, error) {
	return s.lookup, nil
}

func (s stubCache) SmartPut(ctx context.Context, contentID string, task model.TaskType, text string) error {
	return nil
}

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, audio []byte, mime string, task model.TaskType) (string, error) {
	return "", nil
}

func (stubTranscriber) Summarize(ctx context.Context, text string, task model.TaskType) (string, error) {
	return "", nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(ctx context.Context, ref model.MediaReference) ([]byte, string, error) {
	return nil, "", nil
}

type recordingMessenger struct {
	replies []string
}

func (m *recordingMessenger) Reply(to *tele.Message, text string) error {
	m.replies = append(m.replies, text)
	return nil
}

func (m *recordingMessenger) ReplyItalic(to *tele.Message, text string) error {
	m.replies = append(m.replies, text)
	return nil
}

func (m *recordingMessenger) StartTyping(chat *tele.Chat) func() {
	return func() {}
}

type stubStats struct {
	usage *model.UsageStats
}

func (s stubStats) GetUsage(ctx context.Context, userID int64) (*model.UsageStats, error) {
	return s.usage, nil
}

func newTestHandler(lookup transcache.Lookup, stats StatsReader) (*Handler, *recordingMessenger) {
	messenger := &recordingMessenger{}
	processor := orchestrator.NewProcessor(
		gate.New(20, 30),
		stubCache{lookup: lookup},
		stubTranscriber{},
		stubFetcher{},
		messenger,
	)
	return NewHandler(processor, messenger, stats, "quackscribe_bot"), messenger
}

func post(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, handler.Webhook(e.NewContext(req, rec)))
	return rec
}

func updateJSON(t *testing.T, msg *tele.Message) string {
	t.Helper()
	payload, err := json.Marshal(tele.Update{ID: 1, Message: msg})
	require.NoError(t, err)
	return string(payload)
}

func textMsg(text string) *tele.Message {
	return &tele.Message{
		ID:     10,
		Text:   text,
		Sender: &tele.User{ID: 55},
		Chat:   &tele.Chat{ID: 100},
	}
}

func voiceMsg() *tele.Message {
	return &tele.Message{
		ID:     11,
		Sender: &tele.User{ID: 55},
		Chat:   &tele.Chat{ID: 100},
		Voice: &tele.Voice{
			File:     tele.File{FileID: "file-1", UniqueID: "abc123", FileSize: 50000},
			Duration: 42,
			MIME:     "audio/ogg",
		},
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	handler, _ := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_NonMessageUpdate(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, `{"update_id":1}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, messenger.replies)
}

func TestWebhook_PlainTextIgnored(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("just chatting")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, messenger.replies)
}

func TestWebhook_VoiceMessageAutoTranscribes(t *testing.T) {
	cached := transcache.Lookup{State: transcache.Found, Text: "cached transcript"}
	handler, messenger := newTestHandler(cached, nil)

	rec := post(t, handler, updateJSON(t, voiceMsg()))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Equal(t, "cached transcript", messenger.replies[0])
}

func TestWebhook_HelpCommand(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("/help")))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0], "/transcribe")
}

func TestWebhook_PrivacyCommand(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("/privacy")))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0], "7 days")
}

func TestWebhook_TranscribeCommandWithoutTarget(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("/transcribe")))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0], "Reply to an audio message")
}

func TestWebhook_TranslateCommandOnReply(t *testing.T) {
	cached := transcache.Lookup{State: transcache.Found, Text: "cached translation"}
	handler, messenger := newTestHandler(cached, nil)

	msg := textMsg("/translate")
	msg.ReplyTo = voiceMsg()

	rec := post(t, handler, updateJSON(t, msg))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Equal(t, "cached translation", messenger.replies[0])
}

func TestWebhook_CommandAsCaption(t *testing.T) {
	cached := transcache.Lookup{State: transcache.Found, Text: "cached transcript"}
	handler, messenger := newTestHandler(cached, nil)

	msg := voiceMsg()
	msg.Caption = "/transcribe"

	rec := post(t, handler, updateJSON(t, msg))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Equal(t, "cached transcript", messenger.replies[0])
}

func TestWebhook_StatsCommand(t *testing.T) {
	stats := stubStats{usage: &model.UsageStats{UserID: 55, TranscribedSeconds: 125, Requests: 3}}
	handler, messenger := newTestHandler(transcache.Lookup{}, stats)

	rec := post(t, handler, updateJSON(t, textMsg("/stats")))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0], "2m05s")
	assert.Contains(t, messenger.replies[0], "3 requests")
}

func TestWebhook_StatsWithoutStorage(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("/stats")))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, messenger.replies, 1)
	assert.Contains(t, messenger.replies[0], "not available")
}

func TestParseCommand(t *testing.T) {
	handler, _ := newTestHandler(transcache.Lookup{}, nil)

	tests := []struct {
		text     string
		expected string
		ok       bool
	}{
		{"/transcribe", "transcribe", true},
		{"/Transcribe", "transcribe", true},
		{"/translate some trailing text", "translate", true},
		{"/transcribe@quackscribe_bot", "transcribe", true},
		{"/transcribe@QUACKSCRIBE_BOT", "transcribe", true},
		{"/transcribe@some_other_bot", "", false},
		{"not a command", "", false},
		{"", "", false},
		{"/", "", false},
	}

	for _, tt := range tests {
		command, ok := handler.parseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, "text: %q", tt.text)
		assert.Equal(t, tt.expected, command, "text: %q", tt.text)
	}
}

func TestWebhook_UnknownCommandIgnored(t *testing.T) {
	handler, messenger := newTestHandler(transcache.Lookup{}, nil)

	rec := post(t, handler, updateJSON(t, textMsg("/frobnicate")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, messenger.replies)
}
