package athm

import "fmt"

// TransactionStatus is the remote-owned payment state. The server alone
// transitions it; this library only observes it through FindPayment.
type TransactionStatus string

const (
	StatusOpen      TransactionStatus = "OPEN"
	StatusConfirm   TransactionStatus = "CONFIRM"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusCancel    TransactionStatus = "CANCEL"
)

func (s TransactionStatus) String() string {
	return string(s)
}

// parseTransactionStatus maps a remote status token to its canonical value.
func parseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(raw) {
	case StatusOpen, StatusConfirm, StatusCompleted, StatusCancel:
		return TransactionStatus(raw), nil
	default:
		return "", fmt.Errorf("unknown transaction status %q", raw)
	}
}
