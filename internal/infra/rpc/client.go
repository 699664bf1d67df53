// Package rpc is the client for the Zephyr daemon. Block and reserve
// queries go through the monero-style /json_rpc endpoint; transaction
// lookups use the plain /get_transactions endpoint.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// Client talks to one daemon.
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries uint64
}

// NewClient creates a daemon client. timeout covers one HTTP exchange;
// transient failures are retried with exponential backoff.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 4,
	}
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return retry.RetryableError(fmt.Errorf("daemon returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode rpc response: %w", err)
		}
		return nil
	})
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()

	req := jsonRPCRequest{JSONRPC: "2.0", ID: "0", Method: method, Params: params}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := c.post(ctx, "/json_rpc", req, &envelope); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
		return err
	}
	if envelope.Error != nil {
		metrics.RPCErrorsTotal.WithLabelValues(method).Inc()
		return fmt.Errorf("rpc %s: %s (%d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	return json.Unmarshal(envelope.Result, result)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}
