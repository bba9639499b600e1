package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"quackscribe/pkg/logger"
	"quackscribe/pkg/model"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"

	whisperModel = "whisper-large-v3"
	chatModel    = "moonshotai/kimi-k2-instruct"

	// NoSpeech is the sentinel returned when every segment was filtered
	// out. It is a valid result, not an error.
	NoSpeech = "<no text>"

	defaultSummaryPrompt = "You are an AI that explains transcriptions of voice messages. " +
		"Don't speak as the user, instead describe what the user is saying. " +
		"Always provide the summary in English, ensuring it is concise yet comprehensive. " +
		"If the content is unclear, nonsensical, or you're unsure about the message's meaning, " +
		"respond **only** with three question marks (`???`). Do not include any additional text, " +
		"explanations, or formatting—output **strictly** the summary or `???`."

	cavemanSummaryPrompt = "You are an AI that explains transcriptions of voice messages like a caveman. " +
		"Don't speak as the user, instead describe what the user is saying in caveman language. " +
		"Use all caps, no verbs. If the content is unclear, nonsensical, or you're unsure about " +
		"the message's meaning, respond **only** with three question marks (`???`). Do not include " +
		"any additional text, explanations, or formatting—output **strictly** the summary or `???`."
)

// Rate-limit wait time arrives embedded in free text, e.g. "try again in
// 1m51.9s". Parsing is tolerant: a format change just yields zero.
var retryAfterPattern = regexp.MustCompile(`try again in ([0-9hms\.]*[hms])`)

// Client wraps the transcription/translation and chat-completion endpoints
// with ordered multi-key failover. The pool is fixed at construction and
// never reordered by success or failure.
type Client struct {
	keys    []string
	baseURL string
	client  *http.Client
}

func NewClient(keys []string, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		keys:    keys,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// withFailover iterates the key pool in order. Only a rate-limit error moves
// on to the next key; any other error is assumed payload- or logic-related
// and surfaces immediately.
func (c *Client) withFailover(call func(key string) (string, error)) (string, error) {
	if len(c.keys) == 0 {
		return "", &APIError{Message: "no API keys configured"}
	}

	var lastErr error
	for i, key := range c.keys {
		result, err := call(key)
		if err == nil {
			return result, nil
		}

		var rateLimited *RateLimitError
		if errors.As(err, &rateLimited) {
			logger.Warn("Rate limit reached, trying next key",
				zap.Int("key_index", i+1),
				zap.Int("pool_size", len(c.keys)),
				zap.Duration("retry_after", rateLimited.RetryAfter))
			lastErr = err
			continue
		}

		logger.Error("API call failed", zap.Int("key_index", i+1), zap.Error(err))
		return "", err
	}

	return "", lastErr
}

// Transcribe uploads audio for transcription or translation and returns the
// segment-filtered text. task selects the endpoint; summary task types are
// not valid here.
func (c *Client) Transcribe(ctx context.Context, audio []byte, mime string, task model.TaskType) (string, error) {
	endpoint := "transcriptions"
	if task == model.TaskTranslate {
		endpoint = "translations"
	}
	url := fmt.Sprintf("%s/audio/%s", c.baseURL, endpoint)

	return c.withFailover(func(key string) (string, error) {
		return c.transcribeWithKey(ctx, url, key, audio, mime)
	})
}

func (c *Client) transcribeWithKey(ctx context.Context, url, key string, audio []byte, mime string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	if err := form.WriteField("model", whisperModel); err != nil {
		return "", &NetworkError{Err: err}
	}
	if err := form.WriteField("response_format", "verbose_json"); err != nil {
		return "", &NetworkError{Err: err}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="audio.%s"`, extensionFor(mime)))
	header.Set("Content-Type", mime)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return "", &NetworkError{Err: err}
	}
	if err := form.Close(); err != nil {
		return "", &NetworkError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := classifyError(resp); err != nil {
		return "", err
	}

	var whisper WhisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&whisper); err != nil {
		return "", &ParseError{Err: err}
	}

	return FilterSegments(whisper.Segments), nil
}

// FilterSegments drops spans classified as silence or hallucination and
// concatenates the rest in order. A segment is dropped only when both
// conditions hold: no_speech_prob > 0.6 AND avg_logprob < -0.4. The
// conjunction and thresholds are empirically tuned; do not change one
// without the other.
func FilterSegments(segments []WhisperSegment) string {
	var out strings.Builder
	for _, segment := range segments {
		if segment.NoSpeechProb > 0.6 && segment.AvgLogprob < -0.4 {
			continue
		}
		out.WriteString(segment.Text)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return NoSpeech
	}
	return text
}

// Summarize runs a chat completion over an English transcript. task picks
// the persona: TaskSummarize or TaskSummarizeCaveman.
func (c *Client) Summarize(ctx context.Context, text string, task model.TaskType) (string, error) {
	prompt := defaultSummaryPrompt
	temperature := 0.4
	if task == model.TaskSummarizeCaveman {
		prompt = cavemanSummaryPrompt
		temperature = 0.7
	}

	request := ChatRequest{
		Model: chatModel,
		Messages: []ChatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
		Temperature: temperature,
		MaxTokens:   512,
	}

	url := c.baseURL + "/chat/completions"

	return c.withFailover(func(key string) (string, error) {
		return c.summarizeWithKey(ctx, url, key, request)
	})
}

func (c *Client) summarizeWithKey(ctx context.Context, url, key string, request ChatRequest) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return "", &ParseError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if err := classifyError(resp); err != nil {
		return "", err
	}

	var chat ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", &ParseError{Err: err}
	}
	if len(chat.Choices) == 0 {
		return "", &ParseError{Err: fmt.Errorf("response contained no choices")}
	}

	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}

// classifyError maps a non-2xx response to the error taxonomy. HTTP 429 or
// an error code of rate_limit_exceeded becomes a RateLimitError; everything
// else is an APIError.
func classifyError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{Err: err}
	}

	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			return &RateLimitError{}
		}
		return &APIError{Message: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || body.Error.Code == "rate_limit_exceeded" {
		return &RateLimitError{
			RetryAfter: ParseRetryAfter(body.Error.Message),
			Message:    body.Error.Message,
		}
	}

	message := body.Error.Message
	if message == "" {
		message = fmt.Sprintf("API returned status %d", resp.StatusCode)
	}
	return &APIError{Message: message}
}

// ParseRetryAfter extracts the wait time from a rate-limit message such as
// "Rate limit reached … Please try again in 1m51.9s". Returns zero when the
// message doesn't match.
func ParseRetryAfter(message string) time.Duration {
	match := retryAfterPattern.FindStringSubmatch(message)
	if len(match) != 2 {
		return 0
	}
	wait, err := time.ParseDuration(match[1])
	if err != nil {
		return 0
	}
	return wait
}

// extensionFor derives the upload filename extension from a MIME type.
func extensionFor(mime string) string {
	_, subtype, ok := strings.Cut(mime, "/")
	if !ok || subtype == "" {
		return "bin"
	}
	if idx := strings.IndexByte(subtype, ';'); idx >= 0 {
		subtype = subtype[:idx]
	}
	return strings.TrimSpace(subtype)
}
