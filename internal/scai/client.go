// Package scai is a client for the SCAI question-generation backend.
package scai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the hosted SCAI backend.
	DefaultBaseURL = "https://scaiapipost.replit.app"
	defaultTimeout = 60 * time.Second
)

// ErrInvalidResponse is returned when a response body does not match the
// expected shape.
var ErrInvalidResponse = errors.New("invalid backend response")

// APIError is a non-2xx reply from the backend.
type APIError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("scai %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("scai %s: status %d: %s", e.Endpoint, e.Status, e.Detail)
}

// QuestionRequest asks the backend for the next question.
type QuestionRequest struct {
	UserName string `json:"user_name"`
	Subject  string `json:"subject"`
	Chapter  string `json:"chapter"`
	Lesson   string `json:"lesson"`
	Level    int    `json:"level"`
	Goal     string `json:"goal"`
}

// QuestionResponse is a generated question. Goal and Point, when present,
// are the backend's authoritative placement of the question.
type QuestionResponse struct {
	Status   string     `json:"status"`
	Question []string   `json:"question"`
	Response []string   `json:"response"`
	ID       QuestionID `json:"id"`
	Goal     string     `json:"goal,omitempty"`
	Point    string     `json:"point,omitempty"`
}

// OK reports whether the backend produced a usable question.
func (r QuestionResponse) OK() bool {
	return r.Status == "success" && len(r.Question) > 0
}

// AnswerRequest submits a learner's answer.
type AnswerRequest struct {
	UserName   string     `json:"user_name"`
	QuestionID QuestionID `json:"question_id"`
	Answer     string     `json:"user_answer"`
}

// AnswerResponse carries the evaluation of an answer, one line per entry.
type AnswerResponse struct {
	Explanation []string `json:"explanation"`
}

// ExplainRequest asks for a detailed explanation of an answer.
type ExplainRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExplainResponse is a detailed explanation.
type ExplainResponse struct {
	Explain Lines `json:"explain"`
}

// QuestionID is the backend's question identifier. The backend sends it as
// either a JSON number or a string.
type QuestionID string

func (id *QuestionID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("question id: %w", err)
	}
	*id = QuestionID(n.String())
	return nil
}

// MarshalJSON sends numeric ids back as numbers.
func (id QuestionID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Lines accepts either a JSON string or an array of strings.
type Lines []string

func (l *Lines) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Lines{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*l = arr
	return nil
}

// String joins the lines with newlines.
func (l Lines) String() string {
	return strings.Join(l, "\n")
}

// Client talks to the SCAI backend over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the backend URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a backend client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateQuestion requests a question for the learner's current position.
func (c *Client) GenerateQuestion(ctx context.Context, req QuestionRequest) (QuestionResponse, error) {
	var resp QuestionResponse
	if err := c.post(ctx, "/generate-question", req, questionSchema, &resp); err != nil {
		return QuestionResponse{}, err
	}
	if !resp.OK() {
		return QuestionResponse{}, fmt.Errorf("%w: status %q with %d question parts", ErrInvalidResponse, resp.Status, len(resp.Question))
	}
	return resp, nil
}

// SubmitAnswer submits an answer and returns its evaluation.
func (c *Client) SubmitAnswer(ctx context.Context, req AnswerRequest) (AnswerResponse, error) {
	var resp AnswerResponse
	if err := c.post(ctx, "/submit-answer", req, answerSchema, &resp); err != nil {
		return AnswerResponse{}, err
	}
	return resp, nil
}

// ExplainAnswer requests a detailed explanation of an answer.
func (c *Client) ExplainAnswer(ctx context.Context, req ExplainRequest) (ExplainResponse, error) {
	var resp ExplainResponse
	if err := c.post(ctx, "/explain", req, explainSchema, &resp); err != nil {
		return ExplainResponse{}, err
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, in any, schema *responseSchema, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	slog.Debug("scai request completed",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if err := schema.validate(respBody); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, endpoint, err)
	}
	return nil
}

// errorDetail extracts {"detail": ...} from an error body. The detail may
// be a string or any JSON value; otherwise the raw body is returned.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}
