package athm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WebhookEventType is the kind of transaction a webhook notification
// describes. The API emits these in mixed case ("ECOMMERCE" for completed
// and cancelled events, "ecommerce" for expired ones); parsing lowercases.
type WebhookEventType string

const (
	EventSimulated WebhookEventType = "simulated"
	EventPayment   WebhookEventType = "payment"
	EventDonation  WebhookEventType = "donation"
	EventRefund    WebhookEventType = "refund"
	EventEcommerce WebhookEventType = "ecommerce"
)

// WebhookStatus is the normalized event status. The API sends "completed",
// "COMPLETED", "CANCEL" and "expired" depending on the event family; CANCEL
// normalizes to cancelled.
type WebhookStatus string

const (
	WebhookCompleted WebhookStatus = "completed"
	WebhookCancelled WebhookStatus = "cancelled"
	WebhookExpired   WebhookStatus = "expired"
)

// WebhookItem is one line item inside a webhook payload.
type WebhookItem struct {
	Name           string
	Description    string
	Price          decimal.Decimal
	Quantity       int
	Tax            *decimal.Decimal
	Metadata       string
	SKU            string
	FormattedPrice string
}

// WebhookPayload is the normalized projection of an inbound webhook body.
// It is transient: parsed per call, never persisted by this library.
type WebhookPayload struct {
	TransactionType    WebhookEventType
	Status             WebhookStatus
	ReferenceNumber    string
	DailyTransactionID string

	Date            time.Time
	TransactionDate time.Time

	Name        string
	PhoneNumber string
	Email       string
	Message     string

	Total               decimal.Decimal
	Tax                 *decimal.Decimal
	Subtotal            *decimal.Decimal
	Fee                 *decimal.Decimal
	NetAmount           *decimal.Decimal
	TotalRefundedAmount *decimal.Decimal

	Metadata1 string
	Metadata2 string
	Items     []WebhookItem

	// Ecommerce-only fields.
	EcommerceID            string
	BusinessName           string
	IsNonProfit            *bool
	ReferenceTransactionID string
}

type webhookItemWire struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Price          optDecimal `json:"price"`
	Quantity       flexString `json:"quantity"`
	Tax            optDecimal `json:"tax"`
	Metadata       string     `json:"metadata"`
	SKU            string     `json:"sku"`
	FormattedPrice string     `json:"formattedPrice"`
}

type webhookWire struct {
	TransactionType string     `json:"transactionType"`
	Status          string     `json:"status"`
	ReferenceNumber string     `json:"referenceNumber"`
	DailyIDUpper    flexString `json:"dailyTransactionID"`
	DailyIDLower    flexString `json:"dailyTransactionId"`

	Date            string `json:"date"`
	TransactionDate string `json:"transactionDate"`

	Name        string     `json:"name"`
	PhoneNumber flexString `json:"phoneNumber"`
	Email       string     `json:"email"`
	Message     string     `json:"message"`

	Total       optDecimal `json:"total"`
	Tax         optDecimal `json:"tax"`
	SubTotal    optDecimal `json:"subTotal"`
	SubtotalAlt optDecimal `json:"subtotal"`
	Fee         optDecimal `json:"fee"`
	NetAmount   optDecimal `json:"netAmount"`
	Refunded    optDecimal `json:"totalRefundedAmount"`

	Metadata1 string            `json:"metadata1"`
	Metadata2 string            `json:"metadata2"`
	Items     []webhookItemWire `json:"items"`

	EcommerceID            string `json:"ecommerceId"`
	BusinessName           string `json:"businessName"`
	IsNonProfit            *bool  `json:"isNonProfit"`
	ReferenceTransactionID string `json:"referenceTransactionId"`
}

// ParseWebhook validates and normalizes an inbound webhook body. It is a
// pure function: no network interaction, no state.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var w webhookWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformedErr("webhook payload is not valid JSON: "+err.Error(), body)
	}

	eventType, err := parseWebhookEventType(w.TransactionType)
	if err != nil {
		return nil, malformedErr(err.Error(), body)
	}
	status, err := parseWebhookStatus(w.Status)
	if err != nil {
		return nil, malformedErr(err.Error(), body)
	}
	if !w.Total.ok {
		return nil, malformedErr("webhook payload is missing total", body)
	}

	date, err := parseWebhookTime(w.Date)
	if err != nil {
		return nil, malformedErr("invalid date: "+err.Error(), body)
	}
	if date.IsZero() {
		return nil, malformedErr("webhook payload is missing date", body)
	}
	trxDate, err := parseWebhookTime(w.TransactionDate)
	if err != nil {
		return nil, malformedErr("invalid transactionDate: "+err.Error(), body)
	}

	dailyID := string(w.DailyIDUpper)
	if dailyID == "" {
		dailyID = string(w.DailyIDLower)
	}
	subtotal := w.SubTotal
	if !subtotal.ok {
		subtotal = w.SubtotalAlt
	}

	payload := &WebhookPayload{
		TransactionType:        eventType,
		Status:                 status,
		ReferenceNumber:        w.ReferenceNumber,
		DailyTransactionID:     dailyID,
		Date:                   date,
		TransactionDate:        trxDate,
		Name:                   w.Name,
		PhoneNumber:            string(w.PhoneNumber),
		Email:                  w.Email,
		Message:                w.Message,
		Total:                  w.Total.value,
		Tax:                    w.Tax.ptr(),
		Subtotal:               subtotal.ptr(),
		Fee:                    w.Fee.ptr(),
		NetAmount:              w.NetAmount.ptr(),
		TotalRefundedAmount:    w.Refunded.ptr(),
		Metadata1:              w.Metadata1,
		Metadata2:              w.Metadata2,
		EcommerceID:            w.EcommerceID,
		BusinessName:           w.BusinessName,
		IsNonProfit:            w.IsNonProfit,
		ReferenceTransactionID: w.ReferenceTransactionID,
	}

	for i, item := range w.Items {
		normalized, err := normalizeWebhookItem(item)
		if err != nil {
			return nil, malformedErr(fmt.Sprintf("invalid item %d: %v", i, err), body)
		}
		payload.Items = append(payload.Items, normalized)
	}

	return payload, nil
}

func parseWebhookEventType(raw string) (WebhookEventType, error) {
	switch t := WebhookEventType(strings.ToLower(raw)); t {
	case EventSimulated, EventPayment, EventDonation, EventRefund, EventEcommerce:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transactionType %q", raw)
	}
}

func parseWebhookStatus(raw string) (WebhookStatus, error) {
	s := strings.ToLower(raw)
	// Ecommerce cancellations arrive as "CANCEL", not "CANCELLED".
	if s == "cancel" {
		s = string(WebhookCancelled)
	}
	switch ws := WebhookStatus(s); ws {
	case WebhookCompleted, WebhookCancelled, WebhookExpired:
		return ws, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// parseWebhookTime tolerates the variable-length fractional seconds the
// webhook API emits (".0", ".00" and friends).
func parseWebhookTime(raw string) (time.Time, error) {
	return parseAPITime(raw)
}

func normalizeWebhookItem(w webhookItemWire) (WebhookItem, error) {
	item := WebhookItem{
		Name:           w.Name,
		Description:    w.Description,
		Metadata:       w.Metadata,
		SKU:            w.SKU,
		FormattedPrice: w.FormattedPrice,
		Tax:            w.Tax.ptr(),
	}
	if !w.Price.ok {
		return item, fmt.Errorf("missing price")
	}
	item.Price = w.Price.value

	qty, err := strconv.Atoi(string(w.Quantity))
	if err != nil {
		return item, fmt.Errorf("invalid quantity %q", w.Quantity)
	}
	item.Quantity = qty
	return item, nil
}
