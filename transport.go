package flume

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	flerrs "github.com/jdholdren/flume/errors"
)

// httpRequester is the default Requester: plain HTTP against the API base,
// with a Fibonacci backoff on network failures and 5xx responses. 4xx
// responses are never retried.
type httpRequester struct {
	base    *url.URL
	apiKey  string
	client  *http.Client
	log     *slog.Logger
	retries uint64
}

func newHTTPRequester(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) (*httpRequester, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing api base url: %w", err)
	}

	return &httpRequester{
		base:   base,
		apiKey: apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
		log:     log,
		retries: 3,
	}, nil
}

// How the API reports a failure.
type apiError struct {
	Detail     string `json:"detail"`
	Exception  string `json:"exception"`
	StatusCode int    `json:"status_code"`
}

func (h *httpRequester) Do(ctx context.Context, req *Request, out any) error {
	ref, err := url.Parse(req.Path)
	if err != nil {
		return flerrs.E(flerrs.KindTransport, fmt.Errorf("error parsing request path: %w", err))
	}
	u := h.base.ResolveReference(ref)

	query := url.Values{}
	for key, vs := range req.Query {
		query[key] = vs
	}
	query.Set("api_key", h.apiKey)
	u.RawQuery = query.Encode()

	// Encode the body once so each retry attempt can replay it.
	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return flerrs.E(flerrs.KindTransport, fmt.Errorf("error encoding request body: %w", err))
		}
	}

	h.log.DebugContext(ctx, "api request", "method", req.Method, "url", u.String())
	start := time.Now()

	var (
		status  int
		payload []byte
	)
	backoff := retry.WithMaxRetries(h.retries, retry.NewFibonacci(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if req.Signature != "" {
			httpReq.Header.Set("Authorization", req.Signature)
		}

		resp, err := h.client.Do(httpReq)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}

		if status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("server returned %d", status))
		}

		return nil
	})
	if err != nil && status < http.StatusInternalServerError {
		// Network-level failure: no response to report on.
		return flerrs.E(flerrs.KindTransport, err)
	}

	h.log.DebugContext(ctx, "api response",
		"method", req.Method,
		"url", u.String(),
		"status", status,
		"duration", time.Since(start),
	)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		apiErr := apiError{}
		if err := json.Unmarshal(payload, &apiErr); err != nil || apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(status)
		}
		return flerrs.E(flerrs.KindTransport, status, apiErr.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return flerrs.E(flerrs.KindTransport, fmt.Errorf("error decoding response: %w", err))
	}

	return nil
}
