package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// TranscodeError is distinct from download and API failures so the
// orchestrator can report it as its own kind.
type TranscodeError struct {
	Err error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("failed to transcode audio: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Transcode pipes the input through ffmpeg, producing 16 kHz mono
// pcm_s16le WAV. Equivalent to:
//
//	ffmpeg -i pipe:0 -ar 16000 -ac 1 -c:a pcm_s16le -f wav pipe:1
func Transcode(ctx context.Context, ffmpegPath string, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", "pipe:0",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &TranscodeError{
			Err: fmt.Errorf("ffmpeg: %w (%s)", err, stderr.String()),
		}
	}

	return stdout.Bytes(), nil
}
