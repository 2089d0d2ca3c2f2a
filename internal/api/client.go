// Package api talks to the run viewer web frontend.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kartlab/vehiclesim/pkg/core"
)

const (
	// UploadPath is the frontend endpoint that accepts exported runs.
	UploadPath = "/api/v1/runs/add"
	// HealthPath answers 200 while the frontend is up.
	HealthPath = "/healthcheck"

	defaultTimeout = 30 * time.Second
	retryPause     = 2 * time.Second
	maxErrorBody   = 512
)

// ErrStatus matches every *StatusError.
var ErrStatus = errors.New("unexpected status")

// StatusError is returned for responses other than 200.
type StatusError struct {
	Op   string
	Code int
	Body string // leading part of the response body, trimmed
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s %d", e.Op, ErrStatus, e.Code)
	}
	return fmt.Sprintf("%s: %s %d: %s", e.Op, ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each request, upload body included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries retries uploads that failed on transport or with a 5xx status.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// Client handles communication with the web frontend.
type Client struct {
	base    string
	secret  string
	http    *http.Client
	retries int
	pause   time.Duration
}

// New creates a client for the frontend at baseURL, authenticating uploads
// with secret.
func New(baseURL, secret string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimRight(baseURL, "/"),
		secret: secret,
		http:   &http.Client{Timeout: defaultTimeout},
		pause:  retryPause,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Healthcheck checks if the web frontend is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+HealthPath, nil)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	return c.do(req, "healthcheck")
}

// Upload sends an exported run file as a multipart form. The file is
// streamed, never held in memory, and reopened for each attempt.
func (c *Client) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(c.pause):
			}
		}
		err = c.uploadOnce(ctx, path, meta)
		if !retryable(err) {
			return err
		}
	}
	return err
}

func (c *Client) uploadOnce(ctx context.Context, path string, meta core.UploadMetadata) error {
	body, contentType := formBody(path, c.secret, meta)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+UploadPath, body)
	if err != nil {
		_ = body.Close()
		_ = body.err()
		return fmt.Errorf("upload: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	err = c.do(req, "upload")
	// A server that answers early may not read the whole form.
	_ = body.Close()
	werr := body.err()
	if err != nil {
		return err
	}
	if werr != nil {
		return fmt.Errorf("upload: %w", werr)
	}
	return nil
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return true
}

// pipeBody is the read side of a multipart form written on another goroutine.
// The transport may close it from its own goroutine.
type pipeBody struct {
	*io.PipeReader
	done chan error
	once sync.Once
	werr error
}

// err waits for the writer and reports what it hit, ignoring a reader
// that hung up early. Close the body first or the writer may still block.
func (b *pipeBody) err() error {
	b.once.Do(func() { b.werr = <-b.done })
	if errors.Is(b.werr, io.ErrClosedPipe) {
		return nil
	}
	return b.werr
}

func (b *pipeBody) Close() error {
	return b.PipeReader.Close()
}

func formBody(path, secret string, meta core.UploadMetadata) (*pipeBody, string) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	body := &pipeBody{PipeReader: pr, done: make(chan error, 1)}

	go func() {
		err := writeForm(form, path, secret, meta)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
		body.done <- err
	}()
	return body, form.FormDataContentType()
}

func writeForm(form *multipart.Writer, path, secret string, meta core.UploadMetadata) error {
	name := filepath.Base(path)
	fields := []struct{ key, value string }{
		{"secret", secret},
		{"filename", name},
		{"runName", meta.RunName},
		{"track", meta.Track},
		{"runDuration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"tag", meta.Tag},
	}
	for _, f := range fields {
		if err := form.WriteField(f.key, f.value); err != nil {
			return fmt.Errorf("field %s: %w", f.key, err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
