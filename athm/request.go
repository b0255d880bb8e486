package athm

import (
	"fmt"
	"strings"

	"github.com/athmgo/athm/validate"
	"github.com/shopspring/decimal"
)

// PaymentItem describes one line item on a payment. Construct through
// NewPaymentItem so a held value is always valid.
type PaymentItem struct {
	Name        string
	Description string
	Quantity    string
	Price       decimal.Decimal
	Tax         *decimal.Decimal
	Metadata    string
	SKU         string
}

// PaymentItemParams is the caller-facing input for one item.
type PaymentItemParams struct {
	Name        string
	Description string
	Quantity    string
	Price       string
	Tax         string
	Metadata    string
	SKU         string
}

func NewPaymentItem(p PaymentItemParams) (*PaymentItem, error) {
	if p.Name == "" {
		return nil, validationErr("name", validate.ErrFieldEmpty)
	}
	if err := validate.Metadata(p.Name, validate.MaxItemFieldLength); err != nil {
		return nil, validationErr("name", err)
	}
	if p.Description == "" {
		return nil, validationErr("description", validate.ErrFieldEmpty)
	}
	if err := validate.Metadata(p.Description, validate.MaxItemFieldLength); err != nil {
		return nil, validationErr("description", err)
	}

	quantity, err := validate.Quantity(p.Quantity)
	if err != nil {
		return nil, validationErr("quantity", err)
	}
	price, err := validate.Amount(p.Price)
	if err != nil {
		return nil, validationErr("price", err)
	}

	item := &PaymentItem{
		Name:        p.Name,
		Description: p.Description,
		Quantity:    quantity,
		Price:       price,
		Metadata:    p.Metadata,
		SKU:         p.SKU,
	}

	if err := validate.Metadata(p.Metadata, validate.MaxItemFieldLength); err != nil {
		return nil, validationErr("metadata", err)
	}
	if p.Tax != "" {
		tax, err := validate.Amount(p.Tax)
		if err != nil {
			return nil, validationErr("tax", err)
		}
		item.Tax = &tax
	}

	return item, nil
}

type itemWire struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Price       string `json:"price"`
	Tax         string `json:"tax,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	SKU         string `json:"sku,omitempty"`
}

func (i *PaymentItem) wire() itemWire {
	w := itemWire{
		Name:        i.Name,
		Description: i.Description,
		Quantity:    i.Quantity,
		Price:       validate.FormatAmount(i.Price),
		Metadata:    i.Metadata,
		SKU:         i.SKU,
	}
	if i.Tax != nil {
		w.Tax = validate.FormatAmount(*i.Tax)
	}
	return w
}

// PaymentParams is the caller-facing input for CreatePayment.
type PaymentParams struct {
	Total       string
	PhoneNumber string

	// TimeoutSeconds is how long the payment stays OPEN on the remote
	// side, 120..600. Zero means the API default of 600.
	TimeoutSeconds int

	Tax       string
	Subtotal  string
	Metadata1 string
	Metadata2 string
	Items     []PaymentItemParams
}

// PaymentRequest is a validated create-payment request.
type PaymentRequest struct {
	Total          decimal.Decimal
	PhoneNumber    string
	TimeoutSeconds int
	Tax            *decimal.Decimal
	Subtotal       *decimal.Decimal
	Metadata1      string
	Metadata2      string
	Items          []PaymentItem
}

func NewPaymentRequest(p PaymentParams) (*PaymentRequest, error) {
	total, err := validate.Total(p.Total)
	if err != nil {
		return nil, validationErr("total", err)
	}
	phone, err := validate.Phone(p.PhoneNumber)
	if err != nil {
		return nil, validationErr("phoneNumber", err)
	}

	timeout := p.TimeoutSeconds
	if timeout == 0 {
		timeout = validate.MaxPaymentTimeout
	}
	if err := validate.Timeout(timeout); err != nil {
		return nil, validationErr("timeout", err)
	}

	if err := validate.Metadata(p.Metadata1, validate.MaxMetadataLength); err != nil {
		return nil, validationErr("metadata1", err)
	}
	if err := validate.Metadata(p.Metadata2, validate.MaxMetadataLength); err != nil {
		return nil, validationErr("metadata2", err)
	}

	req := &PaymentRequest{
		Total:          total,
		PhoneNumber:    phone,
		TimeoutSeconds: timeout,
		Metadata1:      p.Metadata1,
		Metadata2:      p.Metadata2,
	}

	if p.Tax != "" {
		tax, err := validate.OptionalAmount(p.Tax)
		if err != nil {
			return nil, validationErr("tax", err)
		}
		req.Tax = &tax
	}
	if p.Subtotal != "" {
		subtotal, err := validate.OptionalAmount(p.Subtotal)
		if err != nil {
			return nil, validationErr("subtotal", err)
		}
		req.Subtotal = &subtotal
	}

	// When the caller supplies both parts, the arithmetic must close.
	if req.Tax != nil && req.Subtotal != nil {
		if sum := req.Subtotal.Add(*req.Tax); !sum.Equal(total) {
			return nil, validationErr("total", fmt.Errorf(
				"total (%s) must equal subtotal (%s) + tax (%s)",
				validate.FormatAmount(total),
				validate.FormatAmount(*req.Subtotal),
				validate.FormatAmount(*req.Tax),
			))
		}
	}

	for i, ip := range p.Items {
		item, err := NewPaymentItem(ip)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		req.Items = append(req.Items, *item)
	}

	return req, nil
}

type paymentWire struct {
	PublicToken string     `json:"publicToken"`
	Timeout     string     `json:"timeout"`
	Total       string     `json:"total"`
	Tax         string     `json:"tax,omitempty"`
	Subtotal    string     `json:"subtotal,omitempty"`
	Metadata1   string     `json:"metadata1,omitempty"`
	Metadata2   string     `json:"metadata2,omitempty"`
	Items       []itemWire `json:"items"`
	PhoneNumber string     `json:"phoneNumber"`
}

func (r *PaymentRequest) payload(publicToken string) paymentWire {
	w := paymentWire{
		PublicToken: publicToken,
		Timeout:     fmt.Sprintf("%d", r.TimeoutSeconds),
		Total:       validate.FormatAmount(r.Total),
		Metadata1:   r.Metadata1,
		Metadata2:   r.Metadata2,
		PhoneNumber: r.PhoneNumber,
		Items:       make([]itemWire, 0, len(r.Items)),
	}
	if r.Tax != nil {
		w.Tax = validate.FormatAmount(*r.Tax)
	}
	if r.Subtotal != nil {
		w.Subtotal = validate.FormatAmount(*r.Subtotal)
	}
	for i := range r.Items {
		w.Items = append(w.Items, r.Items[i].wire())
	}
	return w
}

// FindPaymentRequest addresses an existing payment by its ecommerce ID.
type FindPaymentRequest struct {
	EcommerceID string
}

func NewFindPaymentRequest(ecommerceID string) (*FindPaymentRequest, error) {
	if ecommerceID == "" {
		return nil, validationErr("ecommerceId", validate.ErrFieldEmpty)
	}
	return &FindPaymentRequest{EcommerceID: ecommerceID}, nil
}

type findPaymentWire struct {
	EcommerceID string `json:"ecommerceId"`
	PublicToken string `json:"publicToken"`
}

func (r *FindPaymentRequest) payload(publicToken string) findPaymentWire {
	return findPaymentWire{EcommerceID: r.EcommerceID, PublicToken: publicToken}
}

// UpdatePhoneRequest changes the notification phone number of an open payment.
type UpdatePhoneRequest struct {
	EcommerceID string
	PhoneNumber string
}

func NewUpdatePhoneRequest(ecommerceID, phoneNumber string) (*UpdatePhoneRequest, error) {
	if ecommerceID == "" {
		return nil, validationErr("ecommerceId", validate.ErrFieldEmpty)
	}
	phone, err := validate.Phone(phoneNumber)
	if err != nil {
		return nil, validationErr("phoneNumber", err)
	}
	return &UpdatePhoneRequest{EcommerceID: ecommerceID, PhoneNumber: phone}, nil
}

type updatePhoneWire struct {
	EcommerceID string `json:"ecommerceId"`
	PhoneNumber string `json:"phoneNumber"`
}

func (r *UpdatePhoneRequest) payload() updatePhoneWire {
	return updatePhoneWire{EcommerceID: r.EcommerceID, PhoneNumber: r.PhoneNumber}
}

// CancelPaymentRequest cancels an open payment.
type CancelPaymentRequest struct {
	EcommerceID string
}

func NewCancelPaymentRequest(ecommerceID string) (*CancelPaymentRequest, error) {
	if ecommerceID == "" {
		return nil, validationErr("ecommerceId", validate.ErrFieldEmpty)
	}
	return &CancelPaymentRequest{EcommerceID: ecommerceID}, nil
}

type cancelPaymentWire struct {
	EcommerceID string `json:"ecommerceId"`
	PublicToken string `json:"publicToken"`
}

func (r *CancelPaymentRequest) payload(publicToken string) cancelPaymentWire {
	return cancelPaymentWire{EcommerceID: r.EcommerceID, PublicToken: publicToken}
}

// RefundRequest refunds part or all of a completed transaction.
type RefundRequest struct {
	ReferenceNumber string
	Amount          decimal.Decimal
	Message         string
}

func NewRefundRequest(referenceNumber, amount, message string) (*RefundRequest, error) {
	if referenceNumber == "" {
		return nil, validationErr("referenceNumber", validate.ErrFieldEmpty)
	}
	d, err := validate.RefundAmount(amount)
	if err != nil {
		return nil, validationErr("amount", err)
	}
	if err := validate.Metadata(message, validate.MaxMessageLength); err != nil {
		return nil, validationErr("message", err)
	}
	return &RefundRequest{ReferenceNumber: referenceNumber, Amount: d, Message: message}, nil
}

type refundWire struct {
	PublicToken     string `json:"publicToken"`
	PrivateToken    string `json:"privateToken"`
	ReferenceNumber string `json:"referenceNumber"`
	Amount          string `json:"amount"`
	Message         string `json:"message,omitempty"`
}

func (r *RefundRequest) payload(publicToken, privateToken string) refundWire {
	return refundWire{
		PublicToken:     publicToken,
		PrivateToken:    privateToken,
		ReferenceNumber: r.ReferenceNumber,
		Amount:          validate.FormatAmount(r.Amount),
		Message:         r.Message,
	}
}

// WebhookEvents selects which transaction events the listener receives.
type WebhookEvents struct {
	PaymentReceived           bool
	RefundSent                bool
	DonationReceived          bool
	EcommercePaymentReceived  bool
	EcommercePaymentCancelled bool
	EcommercePaymentExpired   bool
}

// DefaultWebhookEvents enables everything except donations.
func DefaultWebhookEvents() WebhookEvents {
	return WebhookEvents{
		PaymentReceived:           true,
		RefundSent:                true,
		DonationReceived:          false,
		EcommercePaymentReceived:  true,
		EcommercePaymentCancelled: true,
		EcommercePaymentExpired:   true,
	}
}

// WebhookSubscriptionRequest registers a webhook listener URL.
type WebhookSubscriptionRequest struct {
	ListenerURL string
	Events      WebhookEvents
}

func NewWebhookSubscriptionRequest(listenerURL string, events WebhookEvents) (*WebhookSubscriptionRequest, error) {
	if listenerURL == "" {
		return nil, validationErr("listenerURL", validate.ErrFieldEmpty)
	}
	// The platform rejects plain-HTTP listeners.
	if !strings.HasPrefix(listenerURL, "https://") {
		return nil, validationErr("listenerURL", fmt.Errorf("webhook listener URL must use HTTPS"))
	}
	return &WebhookSubscriptionRequest{ListenerURL: listenerURL, Events: events}, nil
}

type webhookSubscriptionWire struct {
	PublicToken             string `json:"publicToken"`
	PrivateToken            string `json:"privateToken"`
	ListenerURL             string `json:"listenerURL"`
	PaymentReceivedEvent    bool   `json:"paymentReceivedEvent"`
	RefundSentEvent         bool   `json:"refundSentEvent"`
	DonationReceivedEvent   bool   `json:"donationReceivedEvent"`
	EcommerceReceivedEvent  bool   `json:"ecommercePaymentReceivedEvent"`
	EcommerceCancelledEvent bool   `json:"ecommercePaymentCancelledEvent"`
	EcommerceExpiredEvent   bool   `json:"ecommercePaymentExpiredEvent"`
}

func (r *WebhookSubscriptionRequest) payload(publicToken, privateToken string) webhookSubscriptionWire {
	return webhookSubscriptionWire{
		PublicToken:             publicToken,
		PrivateToken:            privateToken,
		ListenerURL:             r.ListenerURL,
		PaymentReceivedEvent:    r.Events.PaymentReceived,
		RefundSentEvent:         r.Events.RefundSent,
		DonationReceivedEvent:   r.Events.DonationReceived,
		EcommerceReceivedEvent:  r.Events.EcommercePaymentReceived,
		EcommerceCancelledEvent: r.Events.EcommercePaymentCancelled,
		EcommerceExpiredEvent:   r.Events.EcommercePaymentExpired,
	}
}
