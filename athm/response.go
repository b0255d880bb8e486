package athm

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// The remote API is inconsistent about field casing and value types across
// endpoints: daily transaction IDs arrive as "dailyTransactionId" or
// "dailyTransactionID", as strings or numbers; amounts arrive quoted or
// bare; subtotal arrives as "subTotal" or "subtotal". The flex types below
// absorb those variants so each response model has one canonical shape.

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// optDecimal accepts a quoted or bare number, treating null and "" as absent.
type optDecimal struct {
	value decimal.Decimal
	ok    bool
}

func (o *optDecimal) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	if err := o.value.UnmarshalJSON(b); err != nil {
		return err
	}
	o.ok = true
	return nil
}

func (o optDecimal) ptr() *decimal.Decimal {
	if !o.ok {
		return nil
	}
	d := o.value
	return &d
}

// parseAPITime parses the timestamp formats the API emits. Fractional
// seconds of any length are tolerated; empty means absent.
func parseAPITime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// PaymentData is the payload of a successful payment creation.
type PaymentData struct {
	EcommerceID string
	AuthToken   string
}

// PaymentResponse is returned by CreatePayment.
type PaymentResponse struct {
	Status string
	Data   PaymentData
}

func parsePaymentResponse(body []byte) (*PaymentResponse, error) {
	var w struct {
		Status string `json:"status"`
		Data   struct {
			EcommerceID  string `json:"ecommerceId"`
			AuthToken    string `json:"auth_token"`
			AuthTokenAlt string `json:"authToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformedErr("payment response is not valid JSON: "+err.Error(), body)
	}

	token := w.Data.AuthToken
	if token == "" {
		token = w.Data.AuthTokenAlt
	}
	if w.Data.EcommerceID == "" {
		return nil, malformedErr("payment response is missing ecommerceId", body)
	}
	if token == "" {
		return nil, malformedErr("payment response is missing auth token", body)
	}

	return &PaymentResponse{
		Status: w.Status,
		Data:   PaymentData{EcommerceID: w.Data.EcommerceID, AuthToken: token},
	}, nil
}

// TransactionItem is one line item as echoed back by the API.
type TransactionItem struct {
	Name        string
	Description string
	Quantity    string
	Price       *decimal.Decimal
	Tax         *decimal.Decimal
	Metadata    string
	SKU         string
}

type transactionItemWire struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Quantity    flexString `json:"quantity"`
	Price       optDecimal `json:"price"`
	Tax         optDecimal `json:"tax"`
	Metadata    string     `json:"metadata"`
	SKU         string     `json:"sku"`
}

func (w transactionItemWire) normalize() TransactionItem {
	return TransactionItem{
		Name:        w.Name,
		Description: w.Description,
		Quantity:    string(w.Quantity),
		Price:       w.Price.ptr(),
		Tax:         w.Tax.ptr(),
		Metadata:    w.Metadata,
		SKU:         w.SKU,
	}
}

// TransactionData is the normalized detail record of one payment.
type TransactionData struct {
	EcommerceID        string
	Status             TransactionStatus
	ReferenceNumber    string
	BusinessCustomerID string
	TransactionDate    time.Time
	DailyTransactionID string
	BusinessName       string
	BusinessPath       string
	Industry           string

	Subtotal            *decimal.Decimal
	Tax                 *decimal.Decimal
	Total               *decimal.Decimal
	Fee                 *decimal.Decimal
	NetAmount           *decimal.Decimal
	TotalRefundedAmount *decimal.Decimal

	Metadata1   string
	Metadata2   string
	Items       []TransactionItem
	IsNonProfit *bool
}

// TransactionResponse is returned by FindPayment and AuthorizePayment. Data
// is nil when the API answers without a data envelope.
type TransactionResponse struct {
	Status string
	Data   *TransactionData
}

type transactionDataWire struct {
	EcommerceStatus       string     `json:"ecommerceStatus"`
	EcommerceID           string     `json:"ecommerceId"`
	ReferenceNumber       string     `json:"referenceNumber"`
	BusinessCustomerID    string     `json:"businessCustomerId"`
	TransactionDate       string     `json:"transactionDate"`
	DailyTransactionID    flexString `json:"dailyTransactionId"`
	DailyTransactionIDAlt flexString `json:"dailyTransactionID"`
	BusinessName          string     `json:"businessName"`
	BusinessPath          string     `json:"businessPath"`
	Industry              string     `json:"industry"`

	SubTotal    optDecimal `json:"subTotal"`
	SubtotalAlt optDecimal `json:"subtotal"`
	Tax         optDecimal `json:"tax"`
	Total       optDecimal `json:"total"`
	Fee         optDecimal `json:"fee"`
	NetAmount   optDecimal `json:"netAmount"`
	Refunded    optDecimal `json:"totalRefundedAmount"`

	Metadata1   string                `json:"metadata1"`
	Metadata2   string                `json:"metadata2"`
	Items       []transactionItemWire `json:"items"`
	IsNonProfit *bool                 `json:"isNonProfit"`
}

func (w *transactionDataWire) normalize(body []byte) (*TransactionData, error) {
	if w.EcommerceID == "" {
		return nil, malformedErr("transaction data is missing ecommerceId", body)
	}
	status, err := parseTransactionStatus(w.EcommerceStatus)
	if err != nil {
		return nil, malformedErr(err.Error(), body)
	}
	date, err := parseAPITime(w.TransactionDate)
	if err != nil {
		return nil, malformedErr("invalid transactionDate: "+err.Error(), body)
	}

	dailyID := string(w.DailyTransactionID)
	if dailyID == "" {
		dailyID = string(w.DailyTransactionIDAlt)
	}
	subtotal := w.SubTotal
	if !subtotal.ok {
		subtotal = w.SubtotalAlt
	}

	data := &TransactionData{
		EcommerceID:         w.EcommerceID,
		Status:              status,
		ReferenceNumber:     w.ReferenceNumber,
		BusinessCustomerID:  w.BusinessCustomerID,
		TransactionDate:     date,
		DailyTransactionID:  dailyID,
		BusinessName:        w.BusinessName,
		BusinessPath:        w.BusinessPath,
		Industry:            w.Industry,
		Subtotal:            subtotal.ptr(),
		Tax:                 w.Tax.ptr(),
		Total:               w.Total.ptr(),
		Fee:                 w.Fee.ptr(),
		NetAmount:           w.NetAmount.ptr(),
		TotalRefundedAmount: w.Refunded.ptr(),
		Metadata1:           w.Metadata1,
		Metadata2:           w.Metadata2,
		IsNonProfit:         w.IsNonProfit,
	}
	for _, item := range w.Items {
		data.Items = append(data.Items, item.normalize())
	}
	return data, nil
}

func parseTransactionResponse(body []byte) (*TransactionResponse, error) {
	var w struct {
		Status string               `json:"status"`
		Data   *transactionDataWire `json:"data"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformedErr("transaction response is not valid JSON: "+err.Error(), body)
	}

	resp := &TransactionResponse{Status: w.Status}
	if w.Data != nil {
		data, err := w.Data.normalize(body)
		if err != nil {
			return nil, err
		}
		resp.Data = data
	}
	return resp, nil
}

// RefundTransaction describes the refund leg of a refund response.
type RefundTransaction struct {
	TransactionType    string
	Status             string
	RefundedAmount     *decimal.Decimal
	Date               string
	ReferenceNumber    string
	DailyTransactionID string
	Name               string
	PhoneNumber        string
	Email              string
}

// OriginalTransaction describes the transaction a refund applies to.
type OriginalTransaction struct {
	TransactionType     string
	Status              string
	Date                string
	ReferenceNumber     string
	DailyTransactionID  string
	Name                string
	PhoneNumber         string
	Email               string
	Message             string
	Total               *decimal.Decimal
	Tax                 *decimal.Decimal
	Subtotal            *decimal.Decimal
	Fee                 *decimal.Decimal
	NetAmount           *decimal.Decimal
	TotalRefundedAmount *decimal.Decimal
	Metadata1           string
	Metadata2           string
}

// RefundResponse is returned by RefundPayment.
type RefundResponse struct {
	Status              string
	Refund              RefundTransaction
	OriginalTransaction OriginalTransaction
}

type refundLegWire struct {
	TransactionType       string     `json:"transactionType"`
	Status                string     `json:"status"`
	RefundedAmount        optDecimal `json:"refundedAmount"`
	Date                  string     `json:"date"`
	ReferenceNumber       string     `json:"referenceNumber"`
	DailyTransactionID    flexString `json:"dailyTransactionId"`
	DailyTransactionIDAlt flexString `json:"dailyTransactionID"`
	Name                  string     `json:"name"`
	PhoneNumber           flexString `json:"phoneNumber"`
	Email                 string     `json:"email"`
	Message               string     `json:"message"`

	Total       optDecimal `json:"total"`
	Tax         optDecimal `json:"tax"`
	SubTotal    optDecimal `json:"subTotal"`
	SubtotalAlt optDecimal `json:"subtotal"`
	Fee         optDecimal `json:"fee"`
	NetAmount   optDecimal `json:"netAmount"`
	Refunded    optDecimal `json:"totalRefundedAmount"`
	Metadata1   string     `json:"metadata1"`
	Metadata2   string     `json:"metadata2"`
}

func (w *refundLegWire) dailyID() string {
	if s := string(w.DailyTransactionID); s != "" {
		return s
	}
	return string(w.DailyTransactionIDAlt)
}

func parseRefundResponse(body []byte) (*RefundResponse, error) {
	var w struct {
		Status string `json:"status"`
		Data   *struct {
			Refund              *refundLegWire `json:"refund"`
			OriginalTransaction *refundLegWire `json:"originalTransaction"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformedErr("refund response is not valid JSON: "+err.Error(), body)
	}
	if w.Data == nil || w.Data.Refund == nil {
		return nil, malformedErr("refund response is missing refund data", body)
	}

	resp := &RefundResponse{Status: w.Status}
	r := w.Data.Refund
	resp.Refund = RefundTransaction{
		TransactionType:    r.TransactionType,
		Status:             r.Status,
		RefundedAmount:     r.RefundedAmount.ptr(),
		Date:               r.Date,
		ReferenceNumber:    r.ReferenceNumber,
		DailyTransactionID: r.dailyID(),
		Name:               r.Name,
		PhoneNumber:        string(r.PhoneNumber),
		Email:              r.Email,
	}

	if o := w.Data.OriginalTransaction; o != nil {
		subtotal := o.SubTotal
		if !subtotal.ok {
			subtotal = o.SubtotalAlt
		}
		resp.OriginalTransaction = OriginalTransaction{
			TransactionType:     o.TransactionType,
			Status:              o.Status,
			Date:                o.Date,
			ReferenceNumber:     o.ReferenceNumber,
			DailyTransactionID:  o.dailyID(),
			Name:                o.Name,
			PhoneNumber:         string(o.PhoneNumber),
			Email:               o.Email,
			Message:             o.Message,
			Total:               o.Total.ptr(),
			Tax:                 o.Tax.ptr(),
			Subtotal:            subtotal.ptr(),
			Fee:                 o.Fee.ptr(),
			NetAmount:           o.NetAmount.ptr(),
			TotalRefundedAmount: o.Refunded.ptr(),
			Metadata1:           o.Metadata1,
			Metadata2:           o.Metadata2,
		}
	}
	return resp, nil
}

// SuccessResponse is the generic acknowledgment for cancel, phone update and
// webhook subscription. Data keeps whatever the endpoint chose to return.
type SuccessResponse struct {
	Status string
	Data   json.RawMessage
}

func parseSuccessResponse(body []byte) (*SuccessResponse, error) {
	var w struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformedErr("response is not valid JSON: "+err.Error(), body)
	}
	return &SuccessResponse{Status: w.Status, Data: w.Data}, nil
}
