package reportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBody = 16 << 20

type request struct {
	method    string
	path      string
	query     url.Values
	body      any
	out       any
	operation string
	schema    string
}

func (c *Client) do(ctx context.Context, r request) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait %s rate limit: %w", r.operation, err)
		}
	}

	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", r.operation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", r.operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r.operation, 0, time.Since(start))
		return fmt.Errorf("report api %s request: %w", r.operation, err)
	}
	defer resp.Body.Close()
	c.observe(r.operation, resp.StatusCode, time.Since(start))

	c.logger.Debug("report_api_response",
		"operation", r.operation,
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
	)

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(r.operation, resp)
	}
	if r.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read %s response: %w", r.operation, err)
	}
	if c.contract != nil && r.schema != "" {
		if err := c.contract.ValidateResponse(r.schema, data); err != nil {
			return fmt.Errorf("report api %s: %w", r.operation, err)
		}
	}
	if err := json.Unmarshal(data, r.out); err != nil {
		return fmt.Errorf("decode %s response: %w", r.operation, err)
	}
	return nil
}

func (c *Client) observe(operation string, statusCode int, d time.Duration) {
	if c.observer != nil {
		c.observer(operation, statusCode, d)
	}
}
