package posthog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// retryBase is the first backoff delay; it doubles per attempt.
const retryBase = 200 * time.Millisecond

func (c *client) upload(p batchPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	encoding := ""
	if c.cfg.GZip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return fmt.Errorf("failed to compress batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress batch: %w", err)
		}
		body = buf.Bytes()
		encoding = "gzip"
	}

	backoff := retry.WithMaxRetries(uint64(c.cfg.MaxRetries), retry.NewExponential(retryBase))
	return retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		err := c.post(ctx, c.cfg.Endpoint+"/batch/", body, encoding)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		c.log.Warn("batch delivery attempt failed, retrying", "error", err)
		return retry.RetryableError(err)
	})
}

func (c *client) post(ctx context.Context, url string, body []byte, encoding string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", libName+"/"+Version)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
}
