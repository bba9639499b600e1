package gate

import (
	"fmt"

	"quackscribe/pkg/model"
)

// LimitError carries the user-facing rejection text. Gate failures are
// replied to the user and acknowledged with a 200; they are never transport
// errors.
type LimitError struct {
	Reason string
}

func (e *LimitError) Error() string {
	return e.Reason
}

// Gate enforces the size and duration policies before any download or paid
// API call. A cache lookup may still run before the gate: an oversized file
// that was already processed is served from cache.
type Gate struct {
	maxSizeBytes    int64
	maxDurationSecs int
	maxSizeMB       int64
	maxDurationMins int
}

func New(maxFileSizeMB int64, maxDurationMinutes int) *Gate {
	return &Gate{
		maxSizeBytes:    maxFileSizeMB * 1024 * 1024,
		maxDurationSecs: maxDurationMinutes * 60,
		maxSizeMB:       maxFileSizeMB,
		maxDurationMins: maxDurationMinutes,
	}
}

// Check validates a media reference against the limits. Returns a *LimitError
// on rejection.
func (g *Gate) Check(ref model.MediaReference) error {
	if err := g.CheckSize(ref.Size); err != nil {
		return err
	}
	if ref.Duration > g.maxDurationSecs {
		return &LimitError{Reason: fmt.Sprintf("Duration is above %d minutes", g.maxDurationMins)}
	}
	return nil
}

// CheckSize validates a byte count alone. Acquisition re-runs this against
// the platform's authoritative file metadata, since the message-level size
// may be stale or absent.
func (g *Gate) CheckSize(size int64) error {
	if size > g.maxSizeBytes {
		return &LimitError{
			Reason: fmt.Sprintf("File can't be larger than %dMB (is %dMB)", g.maxSizeMB, size/1024/1024),
		}
	}
	return nil
}
