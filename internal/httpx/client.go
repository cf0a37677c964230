package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	apperr "tradedesk/internal/errors"
)

// Client is a thin JSON-over-HTTP client shared by all quote sources.
// It performs exactly one attempt per call: retry policy belongs to the
// caller, never to the transport.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "tradedesk/" + "0.2.0",
	}
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, mapNetError(err)
	}

	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp.Header, apperr.Wrap(apperr.CodeUnavailable, "read source response", readErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.Header, apperr.New(apperr.CodeRateLimited, "source rate limited request")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.Header, apperr.New(apperr.CodeAuth, "source authentication failed")
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.Header, apperr.New(apperr.CodeUnavailable, fmt.Sprintf("source unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.Header, apperr.New(apperr.CodeUnavailable, fmt.Sprintf("source returned unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return resp.Header, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return resp.Header, apperr.New(apperr.CodeUnavailable, "source returned empty response")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return resp.Header, apperr.Wrap(apperr.CodeUnavailable, "decode source JSON", err)
	}
	return resp.Header, nil
}

// DoBodyJSON issues a request with a JSON body and decodes the JSON response.
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeTimeout, "source timeout", err)
	}
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return apperr.Wrap(apperr.CodeTimeout, "source timeout", err)
	}
	return apperr.Wrap(apperr.CodeUnavailable, "source request failed", err)
}
