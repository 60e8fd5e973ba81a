package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StatusCompleted is the only status reported today.
const StatusCompleted = "completed"

// Completion is the record sent when a trainee finishes the procedure.
type Completion struct {
	ProjectName string    `json:"projectName"`
	CompletedAt time.Time `json:"completedAt"`
	SessionID   string    `json:"sessionId"`
	Status      string    `json:"status"`
}

// Notifier delivers a completion to the training platform.
type Notifier interface {
	Notify(ctx context.Context, c Completion) error
	Name() string
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("notifier: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("notifier: unexpected status %d: %s", e.Code, e.Body)
}

// HTTPNotifier posts completions to {BaseURL}/training/completed.
type HTTPNotifier struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPNotifier(baseURL, token string) *HTTPNotifier {
	return &HTTPNotifier{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{},
	}
}

func (n *HTTPNotifier) Name() string {
	return "http"
}

func (n *HTTPNotifier) Endpoint() string {
	return strings.TrimRight(n.BaseURL, "/") + "/training/completed"
}

// Notify performs one POST. Errors that a retry cannot fix are wrapped
// with backoff.Permanent.
func (n *HTTPNotifier) Notify(ctx context.Context, c Completion) error {
	body, err := json.Marshal(c)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("encode completion: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Sentient-Trainer")
	if n.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.Token)
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	serr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	if retryable(resp.StatusCode) {
		return serr
	}
	return backoff.Permanent(serr)
}

// retryable reports whether the platform may accept the same completion
// later: server errors, request timeout and rate limiting.
func retryable(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

// SimulatedNotifier accepts every completion without network access.
type SimulatedNotifier struct {
	Delay time.Duration

	mu   sync.Mutex
	sent []Completion
}

func (s *SimulatedNotifier) Name() string {
	return "simulated"
}

func (s *SimulatedNotifier) Notify(ctx context.Context, c Completion) error {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.sent = append(s.sent, c)
	s.mu.Unlock()
	return nil
}

// Sent lists the accepted completions, oldest first.
func (s *SimulatedNotifier) Sent() []Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Completion, len(s.sent))
	copy(out, s.sent)
	return out
}
