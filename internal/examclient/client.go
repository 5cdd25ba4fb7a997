// Package examclient talks to the exam service REST API on behalf of a
// student. It satisfies attempt.ExamService.
package examclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
)

const (
	headerTenant = "X-Tenant-ID"
	maxBodyBytes = 8 << 20
)

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	tenant  string
	http    *http.Client
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("component", "exam_client").Logger() }
}

// New creates a client for the API rooted at baseURL, e.g.
// "https://exam.example.sch.id/api/v1".
func New(baseURL, token, tenant string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		tenant:  tenant,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchExam loads the exam definition for the authenticated student.
func (c *Client) FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	var exam model.ExamDefinition
	if err := c.do(ctx, http.MethodGet, "/exams/"+examID.String(), nil, &exam); err != nil {
		return nil, fmt.Errorf("fetch exam %s: %w", examID, err)
	}
	return &exam, nil
}

// SubmitExam posts the flattened answers. The server is idempotent per
// student and exam; a repeat returns the first acknowledgment.
func (c *Client) SubmitExam(ctx context.Context, req *model.SubmitRequest) (*model.SubmitAck, error) {
	var ack model.SubmitAck
	if err := c.do(ctx, http.MethodPost, "/exams/submit", req, &ack); err != nil {
		return nil, fmt.Errorf("submit exam %s: %w", req.ExamID, err)
	}
	if ack.Duplicate {
		c.log.Warn().Str("submission_id", ack.SubmissionID.String()).Msg("Server returned an earlier submission")
	}
	return &ack, nil
}

type envelope[T any] struct {
	Data  T                   `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(headerTenant, c.tenant)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Exam API call")

	var r io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if resp.Header.Get("Content-Encoding") == "br" {
		r = brotli.NewReader(r)
	}

	var env envelope[json.RawMessage]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		if resp.StatusCode/100 != 2 {
			return &APIError{Status: resp.StatusCode, Code: response.ErrInternal, Message: resp.Status}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode/100 != 2 || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Fields = env.Error.Fields
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
