package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"quackscribe/internal/gate"
	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"
	"quackscribe/pkg/resilience"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// DownloadError is a failure fetching bytes from the platform.
type DownloadError struct {
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download audio: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Fetcher downloads media bytes from Telegram and optionally normalizes
// them through ffmpeg. The platform's file metadata is the authoritative
// size source; the message-level size may be stale or absent.
type Fetcher struct {
	bot        *tele.Bot
	gate       *gate.Gate
	client     *http.Client
	ffmpegPath string
	retry      *resilience.RetryConfig
}

func NewFetcher(bot *tele.Bot, g *gate.Gate, ffmpegPath string) *Fetcher {
	return &Fetcher{
		bot:        bot,
		gate:       g,
		ffmpegPath: ffmpegPath,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: resilience.DefaultRetryConfig(),
	}
}

// Fetch returns the audio bytes and their MIME type. When transcoding is
// enabled the bytes come back as 16 kHz mono WAV.
func (f *Fetcher) Fetch(ctx context.Context, ref model.MediaReference) ([]byte, string, error) {
	file, err := f.bot.FileByID(ref.FileID)
	if err != nil {
		return nil, "", &DownloadError{Err: fmt.Errorf("failed to get file info: %w", err)}
	}

	// Recheck against the authoritative size before downloading.
	if err := f.gate.CheckSize(file.FileSize); err != nil {
		return nil, "", err
	}

	fileURL := f.bot.URL + "/file/bot" + f.bot.Token + "/" + file.FilePath

	var data []byte
	err = resilience.RetryWithExponentialBackoff(ctx, f.retry, func() error {
		var downloadErr error
		data, downloadErr = f.download(ctx, fileURL)
		return downloadErr
	})
	if err != nil {
		return nil, "", &DownloadError{Err: err}
	}

	logger.Info("File downloaded from Telegram",
		zap.String("content_id", ref.ContentID),
		zap.Int("size", len(data)))

	mime := ref.MIME
	if mime == "" {
		mime = guessMIME(file.FilePath)
	}

	if f.ffmpegPath != "" {
		wav, err := Transcode(ctx, f.ffmpegPath, data)
		if err != nil {
			return nil, "", err
		}
		logger.Debug("Audio transcoded",
			zap.String("content_id", ref.ContentID),
			zap.Int("wav_size", len(wav)))
		return wav, "audio/wav", nil
	}

	return data, mime, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status=%d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// guessMIME maps a file path extension to a MIME type for the upload.
func guessMIME(filePath string) string {
	switch path.Ext(filePath) {
	case ".oga", ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
