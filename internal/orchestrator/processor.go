package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"quackscribe/internal/gate"
	"quackscribe/internal/groq"
	"quackscribe/internal/transcache"
	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// Cache is the transcript cache surface the processor needs.
type Cache interface {
	Get(ctx context.Context, contentID string, task model.TaskType) (transcache.Lookup, error)
	SmartPut(ctx context.Context, contentID string, task model.TaskType, text string) error
}

// Transcriber is the paid API surface.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mime string, task model.TaskType) (string, error)
	Summarize(ctx context.Context, text string, task model.TaskType) (string, error)
}

// Fetcher downloads (and optionally transcodes) media bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref model.MediaReference) ([]byte, string, error)
}

// Messenger delivers replies and the typing indicator.
type Messenger interface {
	Reply(to *tele.Message, text string) error
	ReplyItalic(to *tele.Message, text string) error
	StartTyping(chat *tele.Chat) (stop func())
}

// Archiver stores raw audio bytes. Optional; may be nil.
type Archiver interface {
	Archive(ctx context.Context, contentID, extension string, data []byte, contentType string) error
}

// UsagePublisher emits usage events for the stats pipeline. Optional; may
// be nil.
type UsagePublisher interface {
	PublishUsage(event *model.UsageEvent) error
}

// Outcome is the webhook response. Only an exhausted rate limit produces a
// non-200 status: that signals the platform to redeliver the update later.
// Every other failure, including user-facing rejections, acknowledges with
// 200 so a permanently failing input cannot loop forever.
type Outcome struct {
	Status int
	Body   string
}

func ok() Outcome {
	return Outcome{Status: http.StatusOK}
}

func rateLimited() Outcome {
	return Outcome{Status: http.StatusTooManyRequests, Body: "Rate limit reached"}
}

// Request is one unit of work: resolved media plus the message to thread
// the reply onto.
type Request struct {
	Ref    model.MediaReference
	Msg    *tele.Message
	UserID int64
	Task   model.TaskType
}

// Processor is the per-request state machine: cache lookup → gate →
// acquire → transcribe → populate → reply. Constructed once per process
// and shared read-only across requests.
type Processor struct {
	gate      *gate.Gate
	cache     Cache
	api       Transcriber
	fetcher   Fetcher
	messenger Messenger
	archive   Archiver
	usage     UsagePublisher
}

func NewProcessor(g *gate.Gate, cache Cache, api Transcriber, fetcher Fetcher, messenger Messenger) *Processor {
	return &Processor{
		gate:      g,
		cache:     cache,
		api:       api,
		fetcher:   fetcher,
		messenger: messenger,
	}
}

// WithArchiver enables the best-effort raw audio archive.
func (p *Processor) WithArchiver(a Archiver) *Processor {
	p.archive = a
	return p
}

// WithUsagePublisher enables usage event publishing.
func (p *Processor) WithUsagePublisher(u UsagePublisher) *Processor {
	p.usage = u
	return p
}

// Transcribe handles a transcription or translation request.
func (p *Processor) Transcribe(ctx context.Context, req Request) Outcome {
	log := logger.With(
		zap.String("request_id", uuid.New().String()),
		zap.String("content_id", req.Ref.ContentID),
		zap.String("task_type", string(req.Task)))

	// Cache lookup runs before the gate: an oversized file that was
	// already processed is still served.
	lookup, err := p.cache.Get(ctx, req.Ref.ContentID, req.Task)
	if err != nil {
		log.Error("Cache lookup failed, treating as miss", zap.Error(err))
		lookup = transcache.Lookup{State: transcache.Absent}
	}
	if lookup.State == transcache.Found {
		log.Info("Cache hit, replying without API call")
		p.reply(req.Msg, lookup.Text, log)
		return ok()
	}

	if limitErr := p.gate.Check(req.Ref); limitErr != nil {
		log.Warn("Request rejected by gate", zap.String("reason", limitErr.Error()))
		p.reply(req.Msg, limitErr.Error(), log)
		return ok()
	}

	// Typing starts only after the gate passes, so immediately rejected
	// requests cost nothing. Always stopped before replying.
	stopTyping := p.messenger.StartTyping(req.Msg.Chat)
	defer stopTyping()

	text, outcome, done := p.produceTranscript(ctx, req, stopTyping, log)
	if done {
		return outcome
	}

	p.populate(ctx, req.Ref.ContentID, req.Task, text, log)
	p.publishUsage(req, log)

	stopTyping()
	p.reply(req.Msg, text, log)
	return ok()
}

// Summarize handles a summary request. The summary column is checked
// first, then the translation column; only when both miss does the full
// audio pipeline run.
func (p *Processor) Summarize(ctx context.Context, req Request) Outcome {
	log := logger.With(
		zap.String("request_id", uuid.New().String()),
		zap.String("content_id", req.Ref.ContentID),
		zap.String("task_type", string(req.Task)))

	lookup, err := p.cache.Get(ctx, req.Ref.ContentID, req.Task)
	if err != nil {
		log.Error("Cache lookup failed, treating as miss", zap.Error(err))
		lookup = transcache.Lookup{State: transcache.Absent}
	}
	if lookup.State == transcache.Found {
		log.Info("Summary cache hit, replying without API call")
		p.replyItalic(req.Msg, lookup.Text, log)
		return ok()
	}

	translation, outcome, done := p.obtainTranslation(ctx, req, log)
	if done {
		return outcome
	}
	if translation == groq.NoSpeech {
		p.reply(req.Msg, "No text found in audio", log)
		return ok()
	}

	stopTyping := p.messenger.StartTyping(req.Msg.Chat)
	defer stopTyping()

	summary, err := p.api.Summarize(ctx, translation, req.Task)
	if err != nil {
		return p.apiFailure(req, err, stopTyping, log)
	}

	p.populate(ctx, req.Ref.ContentID, req.Task, summary, log)

	stopTyping()
	p.replyItalic(req.Msg, summary, log)
	return ok()
}

// obtainTranslation returns the cached translation or runs the full
// acquire-and-transcribe pipeline, populating the translation column.
func (p *Processor) obtainTranslation(ctx context.Context, req Request, log *zap.Logger) (string, Outcome, bool) {
	lookup, err := p.cache.Get(ctx, req.Ref.ContentID, model.TaskTranslate)
	if err != nil {
		log.Error("Translation lookup failed, treating as miss", zap.Error(err))
	} else if lookup.State == transcache.Found {
		log.Info("Translation cache hit, skipping audio pipeline")
		return lookup.Text, Outcome{}, false
	}

	if limitErr := p.gate.Check(req.Ref); limitErr != nil {
		log.Warn("Request rejected by gate", zap.String("reason", limitErr.Error()))
		p.reply(req.Msg, limitErr.Error(), log)
		return "", ok(), true
	}

	stopTyping := p.messenger.StartTyping(req.Msg.Chat)
	defer stopTyping()

	translateReq := req
	translateReq.Task = model.TaskTranslate
	text, outcome, done := p.produceTranscript(ctx, translateReq, stopTyping, log)
	if done {
		return "", outcome, true
	}

	p.populate(ctx, req.Ref.ContentID, model.TaskTranslate, text, log)
	p.publishUsage(translateReq, log)

	return text, Outcome{}, false
}

// produceTranscript runs acquisition and the transcription API. done=true
// means the request is finished (the outcome has been decided and any
// user-facing reply sent). stopTyping is called before any reply goes out.
func (p *Processor) produceTranscript(ctx context.Context, req Request, stopTyping func(), log *zap.Logger) (string, Outcome, bool) {
	audio, mime, err := p.fetcher.Fetch(ctx, req.Ref)
	if err != nil {
		log.Error("Failed to acquire audio", zap.Error(err))
		stopTyping()
		p.reply(req.Msg, userFacing(err), log)
		return "", ok(), true
	}

	p.archiveAudio(ctx, req.Ref, audio, mime, log)

	start := time.Now()
	text, err := p.api.Transcribe(ctx, audio, mime, req.Task)
	if err != nil {
		outcome := p.apiFailure(req, err, stopTyping, log)
		return "", outcome, true
	}
	log.Info("Audio transcribed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("text_length", len(text)))

	return text, Outcome{}, false
}

// apiFailure maps a paid-API error to the webhook contract: an exhausted
// rate limit defers via 429 (the platform redelivers), everything else is
// replied to the user and acknowledged.
func (p *Processor) apiFailure(req Request, err error, stopTyping func(), log *zap.Logger) Outcome {
	stopTyping()

	var rl *groq.RateLimitError
	if errors.As(err, &rl) {
		log.Warn("All API keys rate limited, deferring via non-200",
			zap.Duration("retry_after", rl.RetryAfter))
		return rateLimited()
	}

	log.Error("API call failed", zap.Error(err))
	p.reply(req.Msg, userFacing(err), log)
	return ok()
}

// populate writes the result back. The PutNew duplicate-row race with a
// concurrent delivery is swallowed: the data is already correct, only this
// write lost. Any other cache failure is logged and ignored too, since a
// cache outage must never withhold an already-computed result.
func (p *Processor) populate(ctx context.Context, contentID string, task model.TaskType, text string, log *zap.Logger) {
	err := p.cache.SmartPut(ctx, contentID, task, text)
	if err == nil {
		log.Info("Result cached", zap.String("column", string(task)))
		return
	}
	if errors.Is(err, transcache.ErrRowExists) {
		log.Warn("Lost cache population race to a concurrent delivery")
		return
	}
	log.Error("Failed to cache result", zap.Error(err))
}

func (p *Processor) archiveAudio(ctx context.Context, ref model.MediaReference, audio []byte, mime string, log *zap.Logger) {
	if p.archive == nil {
		return
	}
	ext := path.Ext(ref.FileID)
	if ext == "" {
		ext = ".ogg"
	}
	if err := p.archive.Archive(ctx, ref.ContentID, ext, audio, mime); err != nil {
		log.Warn("Failed to archive audio", zap.Error(err))
	}
}

func (p *Processor) publishUsage(req Request, log *zap.Logger) {
	if p.usage == nil {
		return
	}
	event := &model.UsageEvent{
		EventID:            uuid.New().String(),
		UserID:             req.UserID,
		ChatID:             req.Msg.Chat.ID,
		TaskType:           req.Task,
		TranscribedSeconds: int64(req.Ref.Duration),
		CreatedAt:          time.Now(),
	}
	if err := p.usage.PublishUsage(event); err != nil {
		log.Warn("Failed to publish usage event", zap.Error(err))
	}
}

func (p *Processor) reply(to *tele.Message, text string, log *zap.Logger) {
	if err := p.messenger.Reply(to, text); err != nil {
		log.Error("Failed to send reply", zap.Error(err))
	}
}

func (p *Processor) replyItalic(to *tele.Message, text string, log *zap.Logger) {
	if err := p.messenger.ReplyItalic(to, text); err != nil {
		log.Error("Failed to send reply", zap.Error(err))
	}
}

// userFacing wraps an internal error for delivery to the chat.
func userFacing(err error) string {
	var limit *gate.LimitError
	if errors.As(err, &limit) {
		return limit.Error()
	}
	return fmt.Sprintf("Something went wrong, please try again later (%v)", err)
}
