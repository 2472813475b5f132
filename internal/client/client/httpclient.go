package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/common"
)

const apiPrefix = "/api/v1"

// HTTPClient implements Client over the JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("%w: status %q", ErrUnavailable, out.Status)
	}
	return nil
}

func (c *HTTPClient) CreateChallenge(ctx context.Context, payloadHash string, ciphertextSize int64) (*Challenge, error) {
	in := struct {
		PayloadHash    string `json:"payload_hash"`
		CiphertextSize int64  `json:"ciphertext_size"`
	}{payloadHash, ciphertextSize}

	var out Challenge
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/challenges", "", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateSecret(ctx context.Context, in *CreateSecretInput) (*CreatedSecret, error) {
	var out CreatedSecret
	req, err := c.newRequest(ctx, http.MethodPost, apiPrefix+"/secrets", "", in)
	if err != nil {
		return nil, err
	}
	if in.CapabilityToken != "" {
		req.Header.Set(common.CapabilityTokenHeaderName, in.CapabilityToken)
	}
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) EditSecret(ctx context.Context, editToken string, unlockAt time.Time, expiresAt *time.Time) (*EditedSecret, error) {
	in := struct {
		UnlockAt  time.Time  `json:"unlock_at"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}{unlockAt, expiresAt}

	var out EditedSecret
	if err := c.do(ctx, http.MethodPut, apiPrefix+"/secrets/edit", editToken, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Status(ctx context.Context, decryptToken string) (*SecretStatus, error) {
	var out SecretStatus
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/secrets/status", decryptToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Retrieve(ctx context.Context, decryptToken string) (*RetrievedSecret, error) {
	var out RetrievedSecret
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/secrets/retrieve", decryptToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, bearer, in)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path, bearer string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+bearer)
	}
	return req, nil
}

func (c *HTTPClient) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil && !errors.Is(err, io.EOF) {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
