package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"quackscribe/internal/media"
	"quackscribe/internal/orchestrator"
	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

const helpText = `Send a voice message or video note to transcribe it.

Commands (reply to an audio message, or attach as caption):
/transcribe - transcribe the audio
/translate - transcribe and translate to English (/english, /en)
/summarize - summarize the audio
/caveman - summarize the audio like a caveman
/stats - show your usage stats
/privacy - show the privacy policy`

const privacyText = `Privacy policy:
- The bot caches unique file id -> transcription/translation/summary
- Nothing else is stored, not even in logs
- Cached entries expire after 7 days
- No guarantees about model accuracy or reliability`

// StatsReader serves the /stats command. Optional; may be nil.
type StatsReader interface {
	GetUsage(ctx context.Context, userID int64) (*model.UsageStats, error)
}

// Replier is the subset of the messenger the command shell needs.
type Replier interface {
	Reply(to *tele.Message, text string) error
}

// Handler is the webhook shell: it parses updates, routes commands and
// hands audio work to the orchestrator. Malformed bodies get a 400;
// everything else is acknowledged per the orchestrator's outcome.
type Handler struct {
	processor *orchestrator.Processor
	replier   Replier
	stats     StatsReader
	botName   string
}

func NewHandler(processor *orchestrator.Processor, replier Replier, stats StatsReader, botName string) *Handler {
	return &Handler{
		processor: processor,
		replier:   replier,
		stats:     stats,
		botName:   botName,
	}
}

// Register mounts the webhook routes.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/webhook", h.Webhook)
	e.GET("/health", h.Health)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "failed to read body")
	}

	var update tele.Update
	if err := json.Unmarshal(body, &update); err != nil {
		logger.Warn("Failed to parse webhook body", zap.Error(err))
		return c.String(http.StatusBadRequest, "failed to parse webhook")
	}

	outcome := h.handleUpdate(c.Request().Context(), &update)
	return c.String(outcome.Status, outcome.Body)
}

func (h *Handler) handleUpdate(ctx context.Context, update *tele.Update) orchestrator.Outcome {
	msg := update.Message
	if msg == nil {
		logger.Debug("Received non-message update")
		return orchestrator.Outcome{Status: http.StatusOK}
	}

	// Commands may arrive as text or as a media caption.
	if command, ok := h.parseCommand(msg.Text); ok {
		return h.handleCommand(ctx, msg, command)
	}
	if command, ok := h.parseCommand(msg.Caption); ok {
		return h.handleCommand(ctx, msg, command)
	}

	// Voice messages and video notes are transcribed automatically.
	if msg.Voice != nil || msg.VideoNote != nil {
		ref, _ := media.Resolve(msg)
		return h.processor.Transcribe(ctx, h.request(msg, ref, model.TaskTranscribe))
	}

	return orchestrator.Outcome{Status: http.StatusOK}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tele.Message, command string) orchestrator.Outcome {
	switch command {
	case "start":
		h.reply(msg, "Welcome! Send a voice message or video note to transcribe it. Use /help to see all commands.")
	case "help":
		h.reply(msg, helpText)
	case "privacy":
		h.reply(msg, privacyText)
	case "stats":
		h.replyStats(ctx, msg)
	case "transcribe":
		return h.handleAudioCommand(ctx, msg, model.TaskTranscribe,
			"Reply to an audio message or video note to transcribe it.")
	case "translate", "english", "en":
		return h.handleAudioCommand(ctx, msg, model.TaskTranslate,
			"Reply to an audio message or video note to translate it.")
	case "summarize":
		return h.handleAudioCommand(ctx, msg, model.TaskSummarize,
			"Reply to an audio message or video note to summarize it.")
	case "caveman":
		return h.handleAudioCommand(ctx, msg, model.TaskSummarizeCaveman,
			"Reply to an audio message or video note to summarize it like a caveman.")
	default:
		logger.Debug("Unknown command", zap.String("command", command))
	}
	return orchestrator.Outcome{Status: http.StatusOK}
}

func (h *Handler) handleAudioCommand(ctx context.Context, msg *tele.Message, task model.TaskType, helpLine string) orchestrator.Outcome {
	ref, found := media.ResolveTarget(msg)
	if !found {
		h.reply(msg, helpLine)
		return orchestrator.Outcome{Status: http.StatusOK}
	}

	req := h.request(msg, ref, task)
	if task.IsSummary() {
		return h.processor.Summarize(ctx, req)
	}
	return h.processor.Transcribe(ctx, req)
}

func (h *Handler) request(msg *tele.Message, ref model.MediaReference, task model.TaskType) orchestrator.Request {
	var userID int64
	if msg.Sender != nil {
		userID = msg.Sender.ID
	}
	return orchestrator.Request{
		Ref:    ref,
		Msg:    msg,
		UserID: userID,
		Task:   task,
	}
}

func (h *Handler) replyStats(ctx context.Context, msg *tele.Message) {
	if h.stats == nil || msg.Sender == nil {
		h.reply(msg, "Stats are not available.")
		return
	}

	usage, err := h.stats.GetUsage(ctx, msg.Sender.ID)
	if err != nil {
		logger.Error("Failed to read usage stats", zap.Error(err))
		h.reply(msg, "Stats are not available right now, please try again later.")
		return
	}

	minutes := usage.TranscribedSeconds / 60
	seconds := usage.TranscribedSeconds % 60
	h.reply(msg, fmt.Sprintf("You have transcribed %dm%02ds of audio across %d requests.",
		minutes, seconds, usage.Requests))
}

// parseCommand extracts a leading /command, stripping an @botname suffix.
func (h *Handler) parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	command := strings.TrimPrefix(fields[0], "/")
	if name, mention, ok := strings.Cut(command, "@"); ok {
		if h.botName != "" && !strings.EqualFold(mention, h.botName) {
			return "", false
		}
		command = name
	}

	if command == "" {
		return "", false
	}
	return strings.ToLower(command), true
}

func (h *Handler) reply(msg *tele.Message, text string) {
	if err := h.replier.Reply(msg, text); err != nil {
		logger.Error("Failed to send reply", zap.Error(err))
	}
}
