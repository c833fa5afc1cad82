// Package netfetch downloads repository and patch files over HTTP and maps
// failures onto the status taxonomy used by discovery and updates.
package netfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Status classifies the outcome of a download.
type Status int

const (
	StatusOK Status = iota
	StatusClientError
	StatusServerError
	StatusCancelled
	StatusSystemError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusClientError:
		return "client error"
	case StatusServerError:
		return "server error"
	case StatusCancelled:
		return "cancelled"
	case StatusSystemError:
		return "system error"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrCancelled aborts a whole discovery or update run.
var ErrCancelled = errors.New("netfetch: cancelled")

// Error reports a failed download.
type Error struct {
	URL    string
	Status Status
	// Code is the HTTP status code, 0 when no response was received.
	Code int
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.URL, e.Status, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes a cancelled download match ErrCancelled.
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && e.Status == StatusCancelled
}

// StatusOf returns the status carried by err. A nil error is StatusOK; an
// error that is not an *Error is a system error unless it is a context
// cancellation.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return StatusCancelled
	}
	return StatusSystemError
}

// Client downloads whole files.
type Client struct {
	http      *http.Client
	userAgent string
	maxBytes  int64
}

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes = 64 << 20

// New returns a client whose requests time out after timeout. A zero
// timeout means 15 seconds.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: "patchstack",
		maxBytes:  DefaultMaxBytes,
	}
}

// Fetch downloads url. Cancelling ctx yields an error matching ErrCancelled.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Status: StatusSystemError, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, &Error{URL: url, Status: StatusCancelled, Err: ctx.Err()}
		}
		return nil, &Error{URL: url, Status: StatusSystemError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &Error{URL: url, Status: StatusServerError, Code: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &Error{URL: url, Status: StatusClientError, Code: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &Error{URL: url, Status: StatusServerError, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, &Error{URL: url, Status: StatusCancelled, Err: ctx.Err()}
		}
		return nil, &Error{URL: url, Status: StatusSystemError, Err: err}
	}
	if int64(len(body)) > c.maxBytes {
		return nil, &Error{URL: url, Status: StatusSystemError, Err: fmt.Errorf("response exceeds %d bytes", c.maxBytes)}
	}
	return body, nil
}
