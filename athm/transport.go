package athm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/athmgo/athm/config"
	"github.com/athmgo/athm/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Response is the raw outcome of one HTTP exchange. Error responses are not
// special-cased here; the client classifies them.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport is the HTTP capability the client consumes. Implementations
// POST/PUT a JSON body and return whatever the server answered. Tests plug
// in fakes; production uses the bundled net/http transport.
type Transport interface {
	Do(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error)
}

// Closer is implemented by transports holding network resources.
type Closer interface {
	Close()
}

type httpTransport struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

func newHTTPTransport(cfg *config.Config, log logger.Logger) *httpTransport {
	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &httpTransport{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		log: log,
	}
}

func (t *httpTransport) Do(ctx context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	t.log.Debug("sending request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to read response body: " + err.Error(), cause: err}
	}

	t.log.Debug("received response",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_bytes", len(respBody)),
	)

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func (t *httpTransport) Close() {
	t.client.CloseIdleConnections()
}
