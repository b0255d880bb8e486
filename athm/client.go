// Package athm is a client for the ATH Móvil Business payment API. It
// validates requests before they leave the process, classifies remote
// errors into a typed taxonomy, retries transient failures with exponential
// backoff, and offers polling and full-flow helpers on top of the primitive
// operations.
package athm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/athmgo/athm/config"
	"github.com/athmgo/athm/pkg/logger"
	"github.com/athmgo/athm/tokenstore"
	"go.uber.org/zap"
)

// Endpoint paths are part of the stable API contract; only the base URL is
// configuration.
const (
	endpointPayment          = "/api/business-transaction/ecommerce/payment"
	endpointFindPayment      = "/api/business-transaction/ecommerce/business/findPayment"
	endpointAuthorization    = "/api/business-transaction/ecommerce/authorization"
	endpointUpdatePhone      = "/api/business-transaction/ecommerce/business/updatePhoneNumber"
	endpointCancel           = "/api/business-transaction/ecommerce/business/cancel"
	endpointRefund           = "/api/business-transaction/ecommerce/refund"
	endpointWebhookSubscribe = "/api/business-accounts/webhook/subscription"
)

// Client talks to the ATH Móvil API. It owns no payment state beyond the
// auth-token association per ecommerce ID; the payment state machine lives
// on the remote server. A Client is not safe for concurrent use from
// multiple goroutines without external synchronization.
type Client struct {
	cfg        *config.Config
	classifier *Classifier
	tokens     tokenstore.Store
	log        logger.Logger

	transport     Transport
	ownsTransport bool

	sleep func(ctx context.Context, d time.Duration) error
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithTransport replaces the bundled net/http transport. Used by tests and
// by callers who need instrumented HTTP stacks.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
		c.ownsTransport = false
	}
}

func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTokenStore replaces the in-memory auth-token store, e.g. with the
// pgx-backed one so payment sessions survive a restart.
func WithTokenStore(s tokenstore.Store) Option {
	return func(c *Client) { c.tokens = s }
}

// WithClassifier replaces the error classifier, letting callers track remote
// error-code taxonomy changes.
func WithClassifier(cl *Classifier) Option {
	return func(c *Client) { c.classifier = cl }
}

// New builds a Client. The public token is required; the private token is
// only needed for refunds and webhook subscription and its absence is
// detected before any network call.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, validationErr("config", fmt.Errorf("config is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, validationErr("config", err)
	}
	if err := checkTokenShape(cfg.PublicToken, "public_token"); err != nil {
		return nil, err
	}
	if cfg.PrivateToken != "" {
		if err := checkTokenShape(cfg.PrivateToken, "private_token"); err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:        cfg,
		classifier: NewClassifier(nil),
		tokens:     tokenstore.NewMemory(),
		log:        logger.Noop(),
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// placeholderTokens are values that show up when someone copies docs
// verbatim instead of configuring a real credential.
var placeholderTokens = map[string]struct{}{
	"test": {}, "placeholder": {}, "your_token_here": {}, "xxx": {}, "todo": {},
}

func checkTokenShape(token, name string) error {
	if strings.TrimSpace(token) == "" {
		return validationErr(name, fmt.Errorf("cannot be empty or whitespace"))
	}
	if token != strings.TrimSpace(token) {
		return validationErr(name, fmt.Errorf("contains leading or trailing whitespace"))
	}
	if _, ok := placeholderTokens[strings.ToLower(token)]; ok {
		return validationErr(name, fmt.Errorf("appears to be a placeholder"))
	}
	if len(token) < 10 {
		return validationErr(name, fmt.Errorf("appears to be invalid (too short)"))
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ensureTransport lazily builds the HTTP transport on first use.
func (c *Client) ensureTransport() Transport {
	if c.transport == nil {
		c.transport = newHTTPTransport(c.cfg, c.log)
		c.ownsTransport = true
	}
	return c.transport
}

// Close releases the underlying transport. Safe to call more than once.
func (c *Client) Close() {
	if c.ownsTransport && c.transport != nil {
		if closer, ok := c.transport.(Closer); ok {
			closer.Close()
		}
	}
	c.transport = nil
	c.ownsTransport = false
}

// send performs one logical API call: dispatch, classification and the
// retry loop for transient failures. Total transport invocations are at
// most 1+MaxRetries; the last classified error is returned on exhaustion.
func (c *Client) send(ctx context.Context, method, path string, body any, headers map[string]string) ([]byte, error) {
	t := c.ensureTransport()

	var lastErr *Error
	for attempt := 0; ; attempt++ {
		resp, err := t.Do(ctx, method, path, body, headers)

		switch {
		case err != nil:
			lastErr = asClientError(err)
		case resp.StatusCode >= 400 || isErrorEnvelope(resp.Body):
			lastErr = c.classifier.Classify(resp.StatusCode, resp.Body)
		default:
			return resp.Body, nil
		}

		if !lastErr.Kind.Retryable() || attempt >= c.cfg.MaxRetries {
			return nil, lastErr
		}

		delay := c.cfg.RetryBaseDelay << attempt
		c.log.Warn("retrying request",
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.String("kind", lastErr.Kind.String()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
}

func asClientError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), cause: err}
}

// isErrorEnvelope detects error payloads the API ships under HTTP 200.
func isErrorEnvelope(body []byte) bool {
	return bytes.Contains(body, []byte(`"status"`)) &&
		bytes.Contains(body, []byte(`"error"`)) &&
		envelopeStatus(body) == "error"
}

func envelopeStatus(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Status
}

func (c *Client) bearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// CreatePayment opens a payment on the remote side and stores the returned
// auth token keyed by ecommerce ID, so AuthorizePayment can find it later.
func (c *Client) CreatePayment(ctx context.Context, params PaymentParams) (*PaymentResponse, error) {
	req, err := NewPaymentRequest(params)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, endpointPayment, req.payload(c.cfg.PublicToken), nil)
	if err != nil {
		return nil, err
	}

	resp, err := parsePaymentResponse(body)
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Save(ctx, resp.Data.EcommerceID, resp.Data.AuthToken); err != nil {
		return nil, storeErr("payment created but auth token could not be stored", err)
	}

	c.log.Info("payment created",
		zap.String("ecommerce_id", resp.Data.EcommerceID),
		zap.String("auth_token", MaskToken(resp.Data.AuthToken)),
	)
	return resp, nil
}

// FindPayment probes the current status of a payment. Read-only: it never
// touches the token store.
func (c *Client) FindPayment(ctx context.Context, ecommerceID string) (*TransactionResponse, error) {
	req, err := NewFindPaymentRequest(ecommerceID)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, endpointFindPayment, req.payload(c.cfg.PublicToken), nil)
	if err != nil {
		return nil, err
	}
	return parseTransactionResponse(body)
}

// AuthorizePayment completes a confirmed payment using the auth token
// stored by CreatePayment. Calling it for an ID never created through this
// client (or its token store) fails before any network call.
func (c *Client) AuthorizePayment(ctx context.Context, ecommerceID string) (*TransactionResponse, error) {
	token, ok, err := c.tokens.Get(ctx, ecommerceID)
	if err != nil {
		return nil, storeErr("failed to read auth token", err)
	}
	if !ok {
		return nil, authErr("no auth token held for this payment; create it first or supply the token explicitly")
	}
	return c.AuthorizePaymentWithToken(ctx, ecommerceID, token)
}

// AuthorizePaymentWithToken is AuthorizePayment with a caller-supplied auth
// token, for sessions where the create happened elsewhere.
func (c *Client) AuthorizePaymentWithToken(ctx context.Context, ecommerceID, authToken string) (*TransactionResponse, error) {
	if authToken == "" {
		return nil, authErr("auth token is required")
	}

	body, err := c.send(ctx, http.MethodPost, endpointAuthorization, struct{}{}, c.bearerHeaders(authToken))
	if err != nil {
		return nil, err
	}

	resp, err := parseTransactionResponse(body)
	if err != nil {
		return nil, err
	}

	c.log.Info("payment authorized", zap.String("ecommerce_id", ecommerceID))
	return resp, nil
}

// UpdatePhoneNumber changes the customer phone number attached to an open
// payment notification, using the auth token stored by CreatePayment.
func (c *Client) UpdatePhoneNumber(ctx context.Context, ecommerceID, phoneNumber string) (*SuccessResponse, error) {
	token, ok, err := c.tokens.Get(ctx, ecommerceID)
	if err != nil {
		return nil, storeErr("failed to read auth token", err)
	}
	if !ok {
		return nil, authErr("no auth token held for this payment")
	}
	return c.UpdatePhoneNumberWithToken(ctx, ecommerceID, phoneNumber, token)
}

// UpdatePhoneNumberWithToken is UpdatePhoneNumber with a caller-supplied
// auth token, for sessions where the create happened elsewhere.
func (c *Client) UpdatePhoneNumberWithToken(ctx context.Context, ecommerceID, phoneNumber, authToken string) (*SuccessResponse, error) {
	if authToken == "" {
		return nil, authErr("auth token is required")
	}

	req, err := NewUpdatePhoneRequest(ecommerceID, phoneNumber)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPut, endpointUpdatePhone, req.payload(), c.bearerHeaders(authToken))
	if err != nil {
		return nil, err
	}
	return parseSuccessResponse(body)
}

// CancelPayment cancels an open payment and drops its stored auth token.
// The server refuses once the payment has COMPLETED; that surfaces as a
// transaction-state error.
func (c *Client) CancelPayment(ctx context.Context, ecommerceID string) (*SuccessResponse, error) {
	req, err := NewCancelPaymentRequest(ecommerceID)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, endpointCancel, req.payload(c.cfg.PublicToken), nil)
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Delete(ctx, ecommerceID); err != nil {
		c.log.Warn("failed to drop auth token after cancel",
			zap.String("ecommerce_id", ecommerceID), zap.Error(err))
	}

	c.log.Info("payment cancelled", zap.String("ecommerce_id", ecommerceID))
	return parseSuccessResponse(body)
}

// RefundPayment refunds a completed transaction by its reference number.
// The private token must be configured; without it no network call is made.
func (c *Client) RefundPayment(ctx context.Context, referenceNumber, amount, message string) (*RefundResponse, error) {
	if c.cfg.PrivateToken == "" {
		return nil, authErr("private token is required for refunds")
	}

	req, err := NewRefundRequest(referenceNumber, amount, message)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, endpointRefund, req.payload(c.cfg.PublicToken, c.cfg.PrivateToken), nil)
	if err != nil {
		return nil, err
	}

	resp, err := parseRefundResponse(body)
	if err != nil {
		return nil, err
	}

	c.log.Info("refund processed",
		zap.String("reference_number", referenceNumber),
		zap.String("amount", amount),
	)
	return resp, nil
}

// SubscribeWebhook registers a listener URL for transaction events. The
// private token must be configured; the listener must be HTTPS.
func (c *Client) SubscribeWebhook(ctx context.Context, listenerURL string, events WebhookEvents) (*SuccessResponse, error) {
	if c.cfg.PrivateToken == "" {
		return nil, authErr("private token is required for webhook subscription")
	}

	req, err := NewWebhookSubscriptionRequest(listenerURL, events)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, http.MethodPost, endpointWebhookSubscribe, req.payload(c.cfg.PublicToken, c.cfg.PrivateToken), nil)
	if err != nil {
		return nil, err
	}
	return parseSuccessResponse(body)
}

// WaitForConfirmation polls FindPayment every interval until the payment is
// CONFIRM (or already COMPLETED), returning the last observed response.
// CANCEL fails with a transaction-state error; running past timeout fails
// with a timeout error without probing beyond the deadline. The loop never
// probes faster than interval.
func (c *Client) WaitForConfirmation(ctx context.Context, ecommerceID string, timeout, interval time.Duration) (*TransactionResponse, error) {
	deadline := time.Now().Add(timeout)

	for {
		resp, err := c.FindPayment(ctx, ecommerceID)
		if err != nil {
			return nil, err
		}

		if resp.Data != nil {
			switch resp.Data.Status {
			case StatusConfirm, StatusCompleted:
				return resp, nil
			case StatusCancel:
				return nil, &Error{
					Kind:    KindTransaction,
					Message: "payment was cancelled: " + ecommerceID,
				}
			}
		}

		// The next probe would land past the deadline: give up now
		// rather than sleep through it.
		if !time.Now().Add(interval).Before(deadline) {
			return nil, &Error{
				Kind:    KindTimeout,
				Message: "timed out waiting for payment confirmation: " + ecommerceID,
			}
		}
		if err := c.sleep(ctx, interval); err != nil {
			return nil, &Error{Kind: KindTimeout, Message: "polling aborted: " + err.Error(), cause: err}
		}
	}
}

// ProcessCompletePayment runs the whole flow: create, wait for the customer
// to confirm, authorize. When confirmation fails or times out the payment
// is cancelled best-effort if Config.CancelOnTimeout is set; the triggering
// error is returned either way, so the caller keeps full diagnostics.
func (c *Client) ProcessCompletePayment(ctx context.Context, params PaymentParams, timeout, interval time.Duration) (*TransactionResponse, error) {
	created, err := c.CreatePayment(ctx, params)
	if err != nil {
		return nil, err
	}
	ecommerceID := created.Data.EcommerceID

	if _, err := c.WaitForConfirmation(ctx, ecommerceID, timeout, interval); err != nil {
		c.abandonPayment(ctx, ecommerceID)
		return nil, err
	}

	resp, err := c.AuthorizePayment(ctx, ecommerceID)
	if err != nil {
		c.abandonPayment(ctx, ecommerceID)
		return nil, err
	}
	return resp, nil
}

func (c *Client) abandonPayment(ctx context.Context, ecommerceID string) {
	if !c.cfg.CancelOnTimeout {
		return
	}
	if _, err := c.CancelPayment(ctx, ecommerceID); err != nil {
		c.log.Warn("best-effort cancel failed",
			zap.String("ecommerce_id", ecommerceID), zap.Error(err))
	}
}
