package athm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewPaymentRequest(t *testing.T) {
	tests := []struct {
		name      string
		params    PaymentParams
		wantErr   bool
		wantField string
	}{
		{
			name:   "minimal valid",
			params: PaymentParams{Total: "25.50", PhoneNumber: "7875551234"},
		},
		{
			name: "full valid",
			params: PaymentParams{
				Total:       "100.00",
				PhoneNumber: "7875551234",
				Tax:         "7.00",
				Subtotal:    "93.00",
				Metadata1:   "order-1234",
				Items: []PaymentItemParams{
					{Name: "Widget", Description: "A widget", Quantity: "2", Price: "46.50"},
				},
			},
		},
		{
			name:      "total below minimum",
			params:    PaymentParams{Total: "0.99", PhoneNumber: "7875551234"},
			wantErr:   true,
			wantField: "total",
		},
		{
			name:      "total above maximum",
			params:    PaymentParams{Total: "1500.01", PhoneNumber: "7875551234"},
			wantErr:   true,
			wantField: "total",
		},
		{
			name:      "short phone",
			params:    PaymentParams{Total: "10.00", PhoneNumber: "787555123"},
			wantErr:   true,
			wantField: "phoneNumber",
		},
		{
			name:      "formatted phone rejected",
			params:    PaymentParams{Total: "10.00", PhoneNumber: "787-555-1234"},
			wantErr:   true,
			wantField: "phoneNumber",
		},
		{
			name:      "timeout below range",
			params:    PaymentParams{Total: "10.00", PhoneNumber: "7875551234", TimeoutSeconds: 119},
			wantErr:   true,
			wantField: "timeout",
		},
		{
			name:      "timeout above range",
			params:    PaymentParams{Total: "10.00", PhoneNumber: "7875551234", TimeoutSeconds: 601},
			wantErr:   true,
			wantField: "timeout",
		},
		{
			name: "metadata too long",
			params: PaymentParams{
				Total: "10.00", PhoneNumber: "7875551234",
				Metadata1: strings.Repeat("x", 41),
			},
			wantErr:   true,
			wantField: "metadata1",
		},
		{
			name: "inconsistent totals",
			params: PaymentParams{
				Total: "100.00", PhoneNumber: "7875551234",
				Tax: "5.00", Subtotal: "90.00",
			},
			wantErr:   true,
			wantField: "total",
		},
		{
			name: "bad item surfaces index",
			params: PaymentParams{
				Total: "10.00", PhoneNumber: "7875551234",
				Items: []PaymentItemParams{{Name: "ok", Description: "ok", Quantity: "1", Price: "10.00"},
					{Name: "", Description: "missing name", Quantity: "1", Price: "1.00"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewPaymentRequest(tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantField != "" {
					if !IsKind(err, KindValidation) {
						t.Fatalf("error kind = %v, want validation", err)
					}
					var e *Error
					if !errors.As(err, &e) || e.Field != tt.wantField {
						t.Errorf("field = %q, want %q", e.Field, tt.wantField)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req == nil {
				t.Fatal("request is nil")
			}
		})
	}
}

func TestNewPaymentRequestDefaultsTimeout(t *testing.T) {
	req, err := NewPaymentRequest(PaymentParams{Total: "10.00", PhoneNumber: "7875551234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.TimeoutSeconds != 600 {
		t.Errorf("TimeoutSeconds = %d, want 600", req.TimeoutSeconds)
	}
}

func TestPaymentRequestWireFormat(t *testing.T) {
	req, err := NewPaymentRequest(PaymentParams{
		Total:       "5",
		PhoneNumber: "7875551234",
		Tax:         "0.35",
		Subtotal:    "4.65",
		Items: []PaymentItemParams{
			{Name: "Coffee", Description: "12oz", Quantity: "1", Price: "4.65", Tax: "0.35"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := json.Marshal(req.payload("pub-token"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := map[string]string{
		"publicToken": "pub-token",
		"timeout":     "600",
		"total":       "5.00",
		"tax":         "0.35",
		"subtotal":    "4.65",
		"phoneNumber": "7875551234",
	}
	for key, val := range want {
		if got[key] != val {
			t.Errorf("%s = %v, want %q", key, got[key], val)
		}
	}

	items, ok := got["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v, want one item", got["items"])
	}
	item := items[0].(map[string]any)
	if item["price"] != "4.65" || item["quantity"] != "1" {
		t.Errorf("item wire = %v, want price 4.65 quantity 1", item)
	}
}

func TestNewRefundRequest(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		amount  string
		message string
		wantErr bool
	}{
		{"valid", "REF-123", "10.00", "customer request", false},
		{"empty reference", "", "10.00", "", true},
		{"zero amount", "REF-123", "0.00", "", true},
		{"negative amount", "REF-123", "-5.00", "", true},
		{"message too long", "REF-123", "10.00", strings.Repeat("m", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRefundRequest(tt.ref, tt.amount, tt.message)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewWebhookSubscriptionRequest(t *testing.T) {
	if _, err := NewWebhookSubscriptionRequest("http://example.com/hook", DefaultWebhookEvents()); err == nil {
		t.Error("plain HTTP listener accepted")
	}
	if _, err := NewWebhookSubscriptionRequest("", DefaultWebhookEvents()); err == nil {
		t.Error("empty listener accepted")
	}

	req, err := NewWebhookSubscriptionRequest("https://example.com/hook", DefaultWebhookEvents())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, _ := json.Marshal(req.payload("pub", "priv"))
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["listenerURL"] != "https://example.com/hook" {
		t.Errorf("listenerURL = %v", got["listenerURL"])
	}
	if got["donationReceivedEvent"] != false {
		t.Error("donations enabled by default")
	}
	if got["paymentReceivedEvent"] != true || got["ecommercePaymentExpiredEvent"] != true {
		t.Errorf("default events wrong: %v", got)
	}
}

func TestNewUpdatePhoneRequest(t *testing.T) {
	if _, err := NewUpdatePhoneRequest("ecom-1", "787555123"); err == nil {
		t.Error("nine-digit phone accepted")
	}
	req, err := NewUpdatePhoneRequest("ecom-1", "7875551234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.PhoneNumber != "7875551234" {
		t.Errorf("PhoneNumber = %q", req.PhoneNumber)
	}
}
