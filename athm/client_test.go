package athm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/athmgo/athm/config"
)

const (
	testPublicToken  = "pub-0123456789abcdef"
	testPrivateToken = "priv-0123456789abcdef"
)

type fakeCall struct {
	method  string
	path    string
	body    any
	headers map[string]string
}

// fakeTransport records every call and answers through a test-provided
// function.
type fakeTransport struct {
	calls   []fakeCall
	respond func(call fakeCall) (*Response, error)
}

func (f *fakeTransport) Do(_ context.Context, method, path string, body any, headers map[string]string) (*Response, error) {
	call := fakeCall{method: method, path: path, body: body, headers: headers}
	f.calls = append(f.calls, call)
	return f.respond(call)
}

func ok(body string) (*Response, error) {
	return &Response{StatusCode: 200, Body: []byte(body)}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PublicToken = testPublicToken
	cfg.PrivateToken = testPrivateToken
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, respond func(call fakeCall) (*Response, error)) (*Client, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{respond: respond}
	c, err := New(cfg, WithTransport(ft))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, ft
}

func TestNewRejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty public token", func(c *config.Config) { c.PublicToken = "" }},
		{"whitespace public token", func(c *config.Config) { c.PublicToken = "   " }},
		{"padded public token", func(c *config.Config) { c.PublicToken = " " + testPublicToken }},
		{"placeholder public token", func(c *config.Config) { c.PublicToken = "test" }},
		{"short public token", func(c *config.Config) { c.PublicToken = "short" }},
		{"placeholder private token", func(c *config.Config) { c.PrivateToken = "your_token_here" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := New(cfg); !IsKind(err, KindValidation) {
				t.Errorf("New = %v, want validation error", err)
			}
		})
	}
}

func TestNewAllowsMissingPrivateToken(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateToken = ""
	if _, err := New(cfg); err != nil {
		t.Fatalf("New without private token: %v", err)
	}
}

func TestCreatePaymentStoresAuthToken(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(call fakeCall) (*Response, error) {
		switch call.path {
		case endpointPayment:
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		case endpointAuthorization:
			return ok(`{"status":"success","data":{"ecommerceStatus":"COMPLETED","ecommerceId":"ecom-1"}}`)
		default:
			t.Fatalf("unexpected path %s", call.path)
			return nil, nil
		}
	})

	ctx := context.Background()
	resp, err := c.CreatePayment(ctx, PaymentParams{Total: "10.00", PhoneNumber: "7875551234"})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if resp.Data.EcommerceID != "ecom-1" {
		t.Fatalf("EcommerceID = %q", resp.Data.EcommerceID)
	}

	// The stored token must flow into the authorize call as a bearer.
	if _, err := c.AuthorizePayment(ctx, "ecom-1"); err != nil {
		t.Fatalf("AuthorizePayment: %v", err)
	}

	authCall := ft.calls[len(ft.calls)-1]
	if authCall.path != endpointAuthorization {
		t.Fatalf("last call path = %s", authCall.path)
	}
	if got := authCall.headers["Authorization"]; got != "Bearer auth-abc" {
		t.Errorf("Authorization = %q, want Bearer auth-abc", got)
	}
}

func TestCreatePaymentSendsPublicToken(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
	})

	if _, err := c.CreatePayment(context.Background(), PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	raw, err := json.Marshal(ft.calls[0].body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	var sent map[string]any
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if sent["publicToken"] != testPublicToken {
		t.Errorf("publicToken = %v", sent["publicToken"])
	}
	if ft.calls[0].method != http.MethodPost {
		t.Errorf("method = %s, want POST", ft.calls[0].method)
	}
}

func TestCreatePaymentRejectsLocally(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		t.Fatal("transport must not be reached")
		return nil, nil
	})

	if _, err := c.CreatePayment(context.Background(), PaymentParams{Total: "0.50", PhoneNumber: "7875551234"}); !IsKind(err, KindValidation) {
		t.Errorf("err = %v, want validation error", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport calls = %d, want 0", len(ft.calls))
	}
}

func TestAuthorizePaymentWithoutToken(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		t.Fatal("transport must not be reached")
		return nil, nil
	})

	if _, err := c.AuthorizePayment(context.Background(), "never-created"); !IsKind(err, KindAuthentication) {
		t.Errorf("err = %v, want authentication error", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport calls = %d, want 0", len(ft.calls))
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3

	attempts := 0
	c, ft := newTestClient(t, cfg, func(fakeCall) (*Response, error) {
		attempts++
		if attempts < 3 {
			return &Response{StatusCode: 500, Body: []byte(`{"status":"error","message":"boom","errorcode":"BTRA_9999"}`)}, nil
		}
		return ok(`{"status":"success","data":{"ecommerceStatus":"OPEN","ecommerceId":"ecom-1"}}`)
	})

	if _, err := c.FindPayment(context.Background(), "ecom-1"); err != nil {
		t.Fatalf("FindPayment: %v", err)
	}
	if len(ft.calls) != 3 {
		t.Errorf("transport calls = %d, want 3", len(ft.calls))
	}
}

func TestSendRetriesNetworkErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3

	attempts := 0
	c, ft := newTestClient(t, cfg, func(fakeCall) (*Response, error) {
		attempts++
		if attempts < 3 {
			return nil, &Error{Kind: KindNetwork, Message: "connection refused"}
		}
		return ok(`{"status":"success","data":{"ecommerceStatus":"OPEN","ecommerceId":"ecom-1"}}`)
	})

	if _, err := c.FindPayment(context.Background(), "ecom-1"); err != nil {
		t.Fatalf("FindPayment: %v", err)
	}
	if len(ft.calls) != 3 {
		t.Errorf("transport calls = %d, want 3", len(ft.calls))
	}
}

func TestSendExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2

	c, ft := newTestClient(t, cfg, func(fakeCall) (*Response, error) {
		return &Response{StatusCode: 503, Body: []byte(`{"status":"error","message":"unavailable"}`)}, nil
	})

	_, err := c.FindPayment(context.Background(), "ecom-1")
	if !IsKind(err, KindInternal) {
		t.Fatalf("err = %v, want internal error", err)
	}
	// One initial attempt plus MaxRetries.
	if len(ft.calls) != 3 {
		t.Errorf("transport calls = %d, want 3", len(ft.calls))
	}
}

func TestSendDoesNotRetryTerminalErrors(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return &Response{StatusCode: 400, Body: []byte(`{"status":"error","message":"bad","errorcode":"BTRA_0006"}`)}, nil
	})

	if _, err := c.FindPayment(context.Background(), "ecom-1"); !IsKind(err, KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(ft.calls) != 1 {
		t.Errorf("transport calls = %d, want 1", len(ft.calls))
	}
}

func TestSendClassifiesErrorEnvelopeUnder200(t *testing.T) {
	c, _ := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"error","message":"transaction does not exist","errorcode":"BTRA_0007"}`)
	})

	if _, err := c.FindPayment(context.Background(), "ecom-1"); !IsKind(err, KindTransaction) {
		t.Errorf("err = %v, want transaction error", err)
	}
}

func TestWaitForConfirmation(t *testing.T) {
	statuses := []string{"OPEN", "OPEN", "CONFIRM"}
	probe := 0
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		s := statuses[probe]
		probe++
		return ok(`{"status":"success","data":{"ecommerceStatus":"` + s + `","ecommerceId":"ecom-1"}}`)
	})

	resp, err := c.WaitForConfirmation(context.Background(), "ecom-1", time.Minute, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if resp.Data.Status != StatusConfirm {
		t.Errorf("Status = %v, want CONFIRM", resp.Data.Status)
	}
	if len(ft.calls) != 3 {
		t.Errorf("probes = %d, want 3", len(ft.calls))
	}
}

func TestWaitForConfirmationCancelled(t *testing.T) {
	c, _ := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{"ecommerceStatus":"CANCEL","ecommerceId":"ecom-1"}}`)
	})

	if _, err := c.WaitForConfirmation(context.Background(), "ecom-1", time.Minute, time.Millisecond); !IsKind(err, KindTransaction) {
		t.Errorf("err = %v, want transaction error", err)
	}
}

func TestWaitForConfirmationTimesOut(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{"ecommerceStatus":"OPEN","ecommerceId":"ecom-1"}}`)
	})

	_, err := c.WaitForConfirmation(context.Background(), "ecom-1", 0, time.Millisecond)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want timeout error", err)
	}
	if len(ft.calls) != 1 {
		t.Errorf("probes = %d, want exactly 1", len(ft.calls))
	}
}

func TestRefundRequiresPrivateToken(t *testing.T) {
	cfg := testConfig()
	cfg.PrivateToken = ""
	c, ft := newTestClient(t, cfg, func(fakeCall) (*Response, error) {
		t.Fatal("transport must not be reached")
		return nil, nil
	})

	if _, err := c.RefundPayment(context.Background(), "ref-1", "5.00", ""); !IsKind(err, KindAuthentication) {
		t.Errorf("err = %v, want authentication error", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport calls = %d, want 0", len(ft.calls))
	}
}

func TestRefundPayment(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"completed","data":{"refund":{"transactionType":"refund","status":"completed","refundedAmount":"5.00","referenceNumber":"ref-refund"}}}`)
	})

	resp, err := c.RefundPayment(context.Background(), "ref-1", "5.00", "customer request")
	if err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if resp.Refund.ReferenceNumber != "ref-refund" {
		t.Errorf("ReferenceNumber = %q", resp.Refund.ReferenceNumber)
	}

	raw, _ := json.Marshal(ft.calls[0].body)
	var sent map[string]any
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if sent["privateToken"] != testPrivateToken {
		t.Errorf("privateToken missing from refund payload")
	}
}

func TestUpdatePhoneNumberUsesPutWithBearer(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(call fakeCall) (*Response, error) {
		if call.path == endpointPayment {
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		}
		return ok(`{"status":"success","data":{}}`)
	})

	ctx := context.Background()
	if _, err := c.CreatePayment(ctx, PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if _, err := c.UpdatePhoneNumber(ctx, "ecom-1", "7875556789"); err != nil {
		t.Fatalf("UpdatePhoneNumber: %v", err)
	}

	call := ft.calls[len(ft.calls)-1]
	if call.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", call.method)
	}
	if call.headers["Authorization"] != "Bearer auth-abc" {
		t.Errorf("Authorization = %q", call.headers["Authorization"])
	}
}

func TestUpdatePhoneNumberWithToken(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{}}`)
	})

	// No CreatePayment first; the caller supplies the token directly.
	if _, err := c.UpdatePhoneNumberWithToken(context.Background(), "ecom-1", "7875556789", "auth-external"); err != nil {
		t.Fatalf("UpdatePhoneNumberWithToken: %v", err)
	}

	call := ft.calls[0]
	if call.headers["Authorization"] != "Bearer auth-external" {
		t.Errorf("Authorization = %q, want Bearer auth-external", call.headers["Authorization"])
	}

	if _, err := c.UpdatePhoneNumberWithToken(context.Background(), "ecom-1", "7875556789", ""); !IsKind(err, KindAuthentication) {
		t.Errorf("empty token: err = %v, want authentication error", err)
	}
}

func TestUpdatePhoneNumberWithoutStoredToken(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		t.Fatal("transport must not be reached")
		return nil, nil
	})

	if _, err := c.UpdatePhoneNumber(context.Background(), "never-created", "7875556789"); !IsKind(err, KindAuthentication) {
		t.Errorf("err = %v, want authentication error", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport calls = %d, want 0", len(ft.calls))
	}
}

// failingStore errors on every operation.
type failingStore struct{}

func (failingStore) Save(context.Context, string, string) error { return errors.New("store down") }
func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("store down") }

func TestTokenStoreFailuresKeepErrorKind(t *testing.T) {
	ft := &fakeTransport{respond: func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
	}}
	c, err := New(testConfig(), WithTransport(ft), WithTokenStore(failingStore{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }

	ctx := context.Background()
	_, err = c.CreatePayment(ctx, PaymentParams{Total: "10.00", PhoneNumber: "7875551234"})
	if !IsKind(err, KindInternal) {
		t.Fatalf("CreatePayment err = %v, want internal kind", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Unwrap() == nil {
		t.Error("store cause not reachable through Unwrap")
	}

	if _, err := c.AuthorizePayment(ctx, "ecom-1"); !IsKind(err, KindInternal) {
		t.Errorf("AuthorizePayment err = %v, want internal kind", err)
	}
	if _, err := c.UpdatePhoneNumber(ctx, "ecom-1", "7875556789"); !IsKind(err, KindInternal) {
		t.Errorf("UpdatePhoneNumber err = %v, want internal kind", err)
	}
}

func TestCancelPaymentDropsStoredToken(t *testing.T) {
	c, _ := newTestClient(t, testConfig(), func(call fakeCall) (*Response, error) {
		if call.path == endpointPayment {
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		}
		return ok(`{"status":"success","data":{}}`)
	})

	ctx := context.Background()
	if _, err := c.CreatePayment(ctx, PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if _, err := c.CancelPayment(ctx, "ecom-1"); err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}

	if _, ok, _ := c.tokens.Get(ctx, "ecom-1"); ok {
		t.Error("auth token still stored after cancel")
	}
}

func TestSubscribeWebhook(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(fakeCall) (*Response, error) {
		return ok(`{"status":"success","data":{}}`)
	})

	ctx := context.Background()
	if _, err := c.SubscribeWebhook(ctx, "http://insecure.example.com", DefaultWebhookEvents()); !IsKind(err, KindValidation) {
		t.Errorf("plain HTTP listener: err = %v, want validation error", err)
	}
	if len(ft.calls) != 0 {
		t.Errorf("transport calls = %d, want 0", len(ft.calls))
	}

	if _, err := c.SubscribeWebhook(ctx, "https://example.com/hook", DefaultWebhookEvents()); err != nil {
		t.Fatalf("SubscribeWebhook: %v", err)
	}
	if ft.calls[0].path != endpointWebhookSubscribe {
		t.Errorf("path = %s", ft.calls[0].path)
	}
}

func TestProcessCompletePayment(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(call fakeCall) (*Response, error) {
		switch call.path {
		case endpointPayment:
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		case endpointFindPayment:
			return ok(`{"status":"success","data":{"ecommerceStatus":"CONFIRM","ecommerceId":"ecom-1"}}`)
		case endpointAuthorization:
			return ok(`{"status":"success","data":{"ecommerceStatus":"COMPLETED","ecommerceId":"ecom-1","referenceNumber":"ref-1"}}`)
		default:
			t.Fatalf("unexpected path %s", call.path)
			return nil, nil
		}
	})

	resp, err := c.ProcessCompletePayment(context.Background(),
		PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}, time.Minute, time.Millisecond)
	if err != nil {
		t.Fatalf("ProcessCompletePayment: %v", err)
	}
	if resp.Data.Status != StatusCompleted {
		t.Errorf("Status = %v, want COMPLETED", resp.Data.Status)
	}

	wantPaths := []string{endpointPayment, endpointFindPayment, endpointAuthorization}
	if len(ft.calls) != len(wantPaths) {
		t.Fatalf("calls = %d, want %d", len(ft.calls), len(wantPaths))
	}
	for i, want := range wantPaths {
		if ft.calls[i].path != want {
			t.Errorf("call %d path = %s, want %s", i, ft.calls[i].path, want)
		}
	}
}

func TestProcessCompletePaymentCancelsOnTimeout(t *testing.T) {
	c, ft := newTestClient(t, testConfig(), func(call fakeCall) (*Response, error) {
		switch call.path {
		case endpointPayment:
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		case endpointFindPayment:
			return ok(`{"status":"success","data":{"ecommerceStatus":"OPEN","ecommerceId":"ecom-1"}}`)
		case endpointCancel:
			return ok(`{"status":"success","data":{}}`)
		default:
			t.Fatalf("unexpected path %s", call.path)
			return nil, nil
		}
	})

	_, err := c.ProcessCompletePayment(context.Background(),
		PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}, 0, time.Millisecond)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want timeout error", err)
	}

	last := ft.calls[len(ft.calls)-1]
	if last.path != endpointCancel {
		t.Errorf("last call path = %s, want cancel", last.path)
	}
}

func TestProcessCompletePaymentKeepsPaymentWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.CancelOnTimeout = false

	c, ft := newTestClient(t, cfg, func(call fakeCall) (*Response, error) {
		switch call.path {
		case endpointPayment:
			return ok(`{"status":"success","data":{"ecommerceId":"ecom-1","auth_token":"auth-abc"}}`)
		case endpointFindPayment:
			return ok(`{"status":"success","data":{"ecommerceStatus":"OPEN","ecommerceId":"ecom-1"}}`)
		default:
			t.Fatalf("unexpected path %s", call.path)
			return nil, nil
		}
	})

	_, err := c.ProcessCompletePayment(context.Background(),
		PaymentParams{Total: "10.00", PhoneNumber: "7875551234"}, 0, time.Millisecond)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want timeout error", err)
	}
	for _, call := range ft.calls {
		if call.path == endpointCancel {
			t.Error("payment was cancelled despite CancelOnTimeout=false")
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Close()
	c.Close()
}
