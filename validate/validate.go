// Package validate holds the field validators shared by every request model.
// All checks run before any network call; a value that passes is already in
// the shape the remote API expects.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when an amount cannot be parsed as a decimal
	ErrInvalidAmount = errors.New("invalid amount format")
	// ErrAmountTooSmall is returned when a total is below the $1.00 minimum
	ErrAmountTooSmall = errors.New("amount is below minimum")
	// ErrAmountTooLarge is returned when an amount exceeds the $1,500.00 maximum
	ErrAmountTooLarge = errors.New("amount exceeds maximum")
	// ErrNegativeAmount is returned when an amount is negative
	ErrNegativeAmount = errors.New("amount cannot be negative")
	// ErrZeroAmount is returned when a refund amount is not strictly positive
	ErrZeroAmount = errors.New("amount must be positive")
	// ErrInvalidPhone is returned when a phone number is not exactly 10 digits
	ErrInvalidPhone = errors.New("phone number must be exactly 10 digits")
	// ErrMetadataTooLong is returned when a metadata field exceeds its length cap
	ErrMetadataTooLong = errors.New("metadata exceeds maximum length")
	// ErrFieldEmpty is returned when a required field is empty
	ErrFieldEmpty = errors.New("field cannot be empty")
	// ErrInvalidTimeout is returned when the payment timeout is out of range
	ErrInvalidTimeout = errors.New("timeout must be between 120 and 600 seconds")
	// ErrInvalidQuantity is returned when an item quantity is not a positive integer
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
)

const (
	// MinTotal is the minimum payment total accepted by the API
	MinTotal = "1.00"
	// MaxTotal is the maximum payment total accepted by the API
	MaxTotal = "1500.00"
	// MaxMetadataLength is the cap for metadata1 and metadata2
	MaxMetadataLength = 40
	// MaxMessageLength is the cap for a refund message
	MaxMessageLength = 50
	// MaxItemFieldLength is the cap for item name, description and metadata
	MaxItemFieldLength = 255
	// MinPaymentTimeout is the minimum payment expiration in seconds
	MinPaymentTimeout = 120
	// MaxPaymentTimeout is the maximum payment expiration in seconds
	MaxPaymentTimeout = 600
)

var (
	minTotal = decimal.RequireFromString(MinTotal)
	maxTotal = decimal.RequireFromString(MaxTotal)
)

// phoneRegex matches exactly 10 ASCII digits, no separators
var phoneRegex = regexp.MustCompile(`^\d{10}$`)

// Amount parses a raw amount into an exact decimal, rejecting negatives.
func Amount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount", ErrFieldEmpty)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNegativeAmount, raw)
	}
	return d, nil
}

// Total validates a payment total against the [$1.00, $1,500.00] range.
func Total(raw string) (decimal.Decimal, error) {
	d, err := Amount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.LessThan(minTotal) {
		return decimal.Zero, fmt.Errorf("%w: total must be at least $%s", ErrAmountTooSmall, MinTotal)
	}
	if d.GreaterThan(maxTotal) {
		return decimal.Zero, fmt.Errorf("%w: total cannot exceed $%s", ErrAmountTooLarge, MaxTotal)
	}
	return d, nil
}

// OptionalAmount validates tax and subtotal fields: non-negative and within
// the API maximum.
func OptionalAmount(raw string) (decimal.Decimal, error) {
	d, err := Amount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.GreaterThan(maxTotal) {
		return decimal.Zero, fmt.Errorf("%w: amount cannot exceed $%s", ErrAmountTooLarge, MaxTotal)
	}
	return d, nil
}

// RefundAmount validates a refund amount: strictly positive.
func RefundAmount(raw string) (decimal.Decimal, error) {
	d, err := Amount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrZeroAmount, raw)
	}
	return d, nil
}

// FormatAmount renders a decimal with exactly two fractional digits, the
// only amount format the API accepts on the wire.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Phone validates a phone number: exactly 10 ASCII digits.
func Phone(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: phone number", ErrFieldEmpty)
	}
	if !phoneRegex.MatchString(raw) {
		return "", fmt.Errorf("%w: got %q", ErrInvalidPhone, raw)
	}
	return raw, nil
}

// Metadata validates a free-text field against its length cap.
func Metadata(raw string, maxLen int) error {
	if len(raw) > maxLen {
		return fmt.Errorf("%w: max %d characters", ErrMetadataTooLong, maxLen)
	}
	return nil
}

// Timeout validates the payment expiration window in seconds.
func Timeout(seconds int) error {
	if seconds < MinPaymentTimeout || seconds > MaxPaymentTimeout {
		return fmt.Errorf("%w: got %d", ErrInvalidTimeout, seconds)
	}
	return nil
}

// Quantity validates an item quantity as a positive integer and returns its
// canonical string form.
func Quantity(raw string) (string, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("%w: got %q", ErrInvalidQuantity, raw)
	}
	return strconv.Itoa(n), nil
}

// DefaultFeePercent is the standard ATH Móvil Business transaction fee rate.
var DefaultFeePercent = decimal.RequireFromString("2.5")

var oneHundred = decimal.NewFromInt(100)

// Fee computes the transaction fee at the given percentage, rounded to cents.
func Fee(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(oneHundred).Round(2)
}

// NetAmount computes what the business receives from total after the fee at
// the given percentage.
func NetAmount(total, percent decimal.Decimal) decimal.Decimal {
	return total.Sub(Fee(total, percent))
}

// Truncate caps s at maxLen bytes. Unlike Metadata it never fails; callers
// use it to coerce free text that is allowed to be cut short.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// IsEcommerceID reports whether s has the UUID shape the API assigns to
// ecommerce IDs. The ID is otherwise opaque; this only catches obvious
// mix-ups like passing a reference number instead.
func IsEcommerceID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
