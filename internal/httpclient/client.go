// Package httpclient is the JSON and server-sent-events plumbing shared by
// the provider adapters.
package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	userAgent = "model-curator"
	// maxLineSize caps one SSE line; large tool-call deltas exceed the
	// scanner's 64KiB default.
	maxLineSize = 1 << 20
	// maxErrorBody caps how much of a failed response is kept.
	maxErrorBody = 64 << 10
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SendRequest sends body as JSON and decodes a 2xx reply into response when
// it is non-nil. Non-2xx replies become *UpstreamError.
func SendRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body, response interface{}) error {
	req, err := newRequest(ctx, method, url, headers, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := do(client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if response == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// LineProcessor receives each non-empty line of a stream. Returning an error
// stops the stream and is passed back to the caller.
type LineProcessor func(line string) error

// StreamRequest sends body as JSON and feeds the event-stream reply to
// processLine line by line.
func StreamRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}, processLine LineProcessor) error {
	req, err := newRequest(ctx, method, url, headers, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := do(client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			if err := processLine(line); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func newRequest(ctx context.Context, method, url string, headers map[string]string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// do sends req and turns a non-2xx reply into *UpstreamError. On success the
// caller owns the body.
func do(client HTTPClient, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, newUpstreamError(resp, body, req.URL.Redacted())
}
