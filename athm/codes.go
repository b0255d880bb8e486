package athm

import "encoding/json"

// Remote error codes. The taxonomy is owned by the ATH Móvil platform and
// grows over time; the classifier treats the table below as replaceable
// configuration data, not fixed logic.
const (
	CodeTokenInvalidHeader = "token.invalid.header"
	CodeTokenExpired       = "token.expired"

	CodeAmountBelowMinimum  = "BTRA_0001" // amount is below $1.00
	CodeSameCard            = "BTRA_0003" // customer card same as business card
	CodeAmountAboveMaximum  = "BTRA_0004" // amount exceeds $1,500.00
	CodeInvalidBody         = "BTRA_0006" // invalid format or required body missing
	CodeTransactionNotFound = "BTRA_0007" // transaction ID does not exist
	CodeBusinessInactive    = "BTRA_0009"
	CodeBusinessSuspended   = "BTRA_0010"
	CodeAmountZero          = "BTRA_0013"
	CodeTokenInvalid        = "BTRA_0017"
	CodeEcommerceNotFound   = "BTRA_0031"
	CodeNotConfirmed        = "BTRA_0032" // transaction status is not CONFIRM
	CodeCannotConfirm       = "BTRA_0037" // cancelled or failed transaction
	CodeMetadataTooLong     = "BTRA_0038"
	CodeTransactionExpired  = "BTRA_0039"
	CodeMessageTooLong      = "BTRA_0040"
	CodeTokenIssue1         = "BTRA_0401"
	CodeTokenIssue2         = "BTRA_0402"
	CodeTokenIssue3         = "BTRA_0403"
	CodeCommunicationError  = "BTRA_9998"
	CodeInternalError       = "BTRA_9999"
)

// defaultCodeKinds maps every known remote error code to a kind. Unknown
// codes fall through to HTTP-status classification.
var defaultCodeKinds = map[string]Kind{
	CodeTokenInvalidHeader: KindAuthentication,
	CodeTokenExpired:       KindAuthentication,
	CodeTokenInvalid:       KindAuthentication,
	CodeTokenIssue1:        KindAuthentication,
	CodeTokenIssue2:        KindAuthentication,
	CodeTokenIssue3:        KindAuthentication,

	CodeAmountBelowMinimum: KindValidation,
	CodeAmountAboveMaximum: KindValidation,
	CodeInvalidBody:        KindValidation,
	CodeAmountZero:         KindValidation,
	CodeMetadataTooLong:    KindValidation,
	CodeMessageTooLong:     KindValidation,

	CodeTransactionNotFound: KindTransaction,
	CodeEcommerceNotFound:   KindTransaction,
	CodeNotConfirmed:        KindTransaction,
	CodeCannotConfirm:       KindTransaction,
	CodeTransactionExpired:  KindTransaction,

	CodeSameCard:          KindBusiness,
	CodeBusinessInactive:  KindBusiness,
	CodeBusinessSuspended: KindBusiness,

	CodeCommunicationError: KindNetwork,
	CodeInternalError:      KindInternal,
}

// Classifier maps remote error responses to typed errors. It is a pure
// function of (HTTP status, error code) over its code table.
type Classifier struct {
	codes map[string]Kind
}

// NewClassifier builds a classifier with the default code table. Overrides
// lets callers track remote taxonomy changes without a library release;
// a nil map keeps the defaults as-is.
func NewClassifier(overrides map[string]Kind) *Classifier {
	codes := make(map[string]Kind, len(defaultCodeKinds)+len(overrides))
	for code, kind := range defaultCodeKinds {
		codes[code] = kind
	}
	for code, kind := range overrides {
		codes[code] = kind
	}
	return &Classifier{codes: codes}
}

// errorEnvelope is the remote error response shape.
type errorEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorcode"`
}

// Classify turns a remote error response into a typed *Error. The original
// code, HTTP status and raw body always ride along.
func (c *Classifier) Classify(httpStatus int, body []byte) *Error {
	var env errorEnvelope
	// A body that does not even parse still classifies by HTTP status.
	_ = json.Unmarshal(body, &env)

	message := env.Message
	if message == "" {
		message = "unknown error"
	}

	kind, known := c.codes[env.ErrorCode]
	if !known {
		switch {
		case httpStatus == 401:
			kind = KindAuthentication
		case httpStatus == 400:
			kind = KindValidation
		case httpStatus == 429:
			kind = KindRateLimit
		case httpStatus >= 500:
			kind = KindInternal
		default:
			kind = KindAPI
		}
	}

	return &Error{
		Kind:       kind,
		Message:    message,
		Code:       env.ErrorCode,
		StatusCode: httpStatus,
		Body:       body,
	}
}
