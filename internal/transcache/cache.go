package transcache

import (
	"context"
	"errors"
	"time"

	"quackscribe/pkg/cache"
	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"go.uber.org/zap"
)

// DefaultTTL is the shared row expiry. A write to any column refreshes it.
const DefaultTTL = 7 * 24 * time.Hour

// ErrRowExists is returned by PutNew when a row is already present for the
// content id. Concurrent duplicate webhook deliveries can race into this;
// callers treat it as non-fatal since the computed text is already correct.
var ErrRowExists = errors.New("transcache: row already exists")

// LookupState is the three-way outcome of a point lookup.
type LookupState int

const (
	// Absent means no row exists for the content id at all.
	Absent LookupState = iota
	// ExistsForOtherTask means the row exists but this task's column is
	// empty. The caller must still do the work, then update instead of
	// insert.
	ExistsForOtherTask
	// Found means the requested column is populated.
	Found
)

type Lookup struct {
	State LookupState
	Text  string
}

// Store is the transcript cache: one row per content id, one column per task
// type, a single TTL governing the whole row.
type Store struct {
	kv  cache.Cache
	ttl time.Duration
}

func New(kv cache.Cache, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Get distinguishes "no row at all" from "row exists but this column is
// empty"; the orchestrator uses the latter to choose update over insert.
func (s *Store) Get(ctx context.Context, contentID string, task model.TaskType) (Lookup, error) {
	key := cache.TranscriptCacheKey(contentID)

	text, ok, err := s.kv.HashGet(ctx, key, string(task))
	if err != nil {
		return Lookup{}, err
	}
	if ok {
		return Lookup{State: Found, Text: text}, nil
	}

	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return Lookup{}, err
	}
	if exists {
		return Lookup{State: ExistsForOtherTask}, nil
	}
	return Lookup{State: Absent}, nil
}

// PutNew inserts a fresh row. It is not an upsert: if a row already exists
// the write fails with ErrRowExists and the row is left untouched.
func (s *Store) PutNew(ctx context.Context, contentID string, task model.TaskType, text string) error {
	key := cache.TranscriptCacheKey(contentID)

	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return ErrRowExists
	}

	if err := s.kv.HashSet(ctx, key, string(task), text); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.ttl)
}

// UpdateExisting writes one column on an existing row and refreshes the
// row's TTL.
func (s *Store) UpdateExisting(ctx context.Context, contentID string, task model.TaskType, text string) error {
	key := cache.TranscriptCacheKey(contentID)

	if err := s.kv.HashSet(ctx, key, string(task), text); err != nil {
		return err
	}
	return s.kv.Expire(ctx, key, s.ttl)
}

// SmartPut chooses insert or update based on row existence. Read-then-write,
// not atomic: two concurrent deliveries for the same content id can both see
// no row and the loser gets ErrRowExists from PutNew.
func (s *Store) SmartPut(ctx context.Context, contentID string, task model.TaskType, text string) error {
	lookup, err := s.Get(ctx, contentID, task)
	if err != nil {
		return err
	}

	if lookup.State == Absent {
		return s.PutNew(ctx, contentID, task, text)
	}

	logger.Debug("Row exists, updating column",
		zap.String("content_id", contentID),
		zap.String("task_type", string(task)))
	return s.UpdateExisting(ctx, contentID, task, text)
}
