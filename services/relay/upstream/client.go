// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 30 * time.Second
	defaultRetryBackoff   = 1 * time.Second
)

// RequestBuilder creates a fresh request for one attempt. A builder is
// used instead of a single *http.Request because request bodies cannot
// be replayed across attempts.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Client is an http.Client wrapper that retries transport failures.
//
// Retry policy:
//   - up to MaxAttempts sequential attempts
//   - each attempt is aborted if no response headers arrive within
//     AttemptTimeout; the timeout does not cover reading the body, so
//     long-lived streaming responses are unaffected
//   - linear backoff (RetryBackoff * attempt number) between failures,
//     no wait after the last one
//   - any HTTP response, regardless of status code, ends the loop; only
//     transport errors are retried
//
// Exhaustion returns a *NetworkError wrapping the last attempt's error.
type Client struct {
	HTTPClient     *http.Client
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryBackoff   time.Duration

	// OnAttempts, when set, is called once per Do with the number of
	// attempts that were made, successful or not.
	OnAttempts func(attempts int)

	// sleep waits between attempts. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client with default retry policy.
func NewClient() *Client {
	return &Client{
		HTTPClient:     &http.Client{},
		MaxAttempts:    defaultMaxAttempts,
		AttemptTimeout: defaultAttemptTimeout,
		RetryBackoff:   defaultRetryBackoff,
		sleep:          sleepContext,
	}
}

// Do executes the request with retries.
//
// The returned response body must be closed by the caller; closing it
// releases the attempt's cancel function.
func (c *Client) Do(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.attempt(ctx, build)
		if err == nil {
			if c.OnAttempts != nil {
				c.OnAttempts(attempt)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			// Caller went away; not an upstream failure.
			return nil, ctx.Err()
		}
		lastErr = err

		if attempt == c.MaxAttempts {
			break
		}

		wait := c.RetryBackoff * time.Duration(attempt)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if c.OnAttempts != nil {
		c.OnAttempts(c.MaxAttempts)
	}
	return nil, &NetworkError{
		Kind:     classify(lastErr),
		Attempts: c.MaxAttempts,
		Err:      lastErr,
	}
}

// attempt runs a single try. The attempt timer only covers the time
// until response headers arrive, mirroring an abort-controller around
// the connection phase rather than the whole body.
func (c *Client) attempt(ctx context.Context, build RequestBuilder) (*http.Response, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.AttemptTimeout, cancel)

	req, err := build(attemptCtx)
	if err != nil {
		timer.Stop()
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		fired := !timer.Stop()
		cancel()
		if fired && ctx.Err() == nil {
			return nil, fmt.Errorf("no response within %v: %w", c.AttemptTimeout, context.DeadlineExceeded)
		}
		return nil, err
	}

	timer.Stop()
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// cancelOnClose ties an attempt's cancel function to the body lifecycle
// so the request context is released when the caller finishes reading.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}
