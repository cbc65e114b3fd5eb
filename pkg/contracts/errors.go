package contracts

import "fmt"

// Stable protocol error codes. These are the only errors a page ever
// sees; internal failures are mapped to CodeInternal before they
// cross the extension boundary.
const (
	CodeInvalidInput        = "AEGIS/REQUEST/INVALID_INPUT"
	CodeNetworkNotSupported = "AEGIS/NETWORK/NOT_SUPPORTED"
	CodeUnauthorizedSigner  = "AEGIS/SIGNER/UNAUTHORIZED"
	CodeInvalidGroupID      = "AEGIS/TXN/INVALID_GROUP_ID"
	CodeMethodCanceled      = "AEGIS/CONSENT/CANCELED"
	CodeInternal            = "AEGIS/INTERNAL/FAILURE"
)

// ProtocolError is the typed error surfaced to pages. Data carries
// structured detail such as the offending network identifiers or the
// rejected signer address.
type ProtocolError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match on the stable code.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Code == e.Code
}

// ErrInvalidInput reports missing or malformed required parameters.
func ErrInvalidInput(detail string) *ProtocolError {
	return &ProtocolError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid request parameters: %s", detail),
	}
}

// ErrNetworkNotSupported names every referenced network that is not
// configured or enabled. networks must be deduplicated by the caller.
func ErrNetworkNotSupported(networks []string) *ProtocolError {
	return &ProtocolError{
		Code:    CodeNetworkNotSupported,
		Message: fmt.Sprintf("network not supported: %v", networks),
		Data:    map[string]any{"networks": networks},
	}
}

// ErrUnauthorizedSigner reports an address no active session
// authorizes, or a watch-only address. address may be empty when no
// specific signer was named.
func ErrUnauthorizedSigner(address string) *ProtocolError {
	e := &ProtocolError{
		Code:    CodeUnauthorizedSigner,
		Message: "signer is not authorized for this origin",
	}
	if address != "" {
		e.Message = fmt.Sprintf("signer %s is not authorized for this origin", address)
		e.Data = map[string]any{"address": address}
	}
	return e
}

// ErrInvalidGroupID reports a transaction batch that fails
// group-commit validation.
func ErrInvalidGroupID(detail string) *ProtocolError {
	return &ProtocolError{
		Code:    CodeInvalidGroupID,
		Message: fmt.Sprintf("invalid transaction group: %s", detail),
	}
}

// ErrMethodCanceled is the distinguished error for an explicit human
// dismissal of a pending consent request.
func ErrMethodCanceled() *ProtocolError {
	return &ProtocolError{
		Code:    CodeMethodCanceled,
		Message: "the user canceled the request",
	}
}

// ErrInternal reports a storage or transport failure not attributable
// to the caller. The underlying cause is logged, never surfaced.
func ErrInternal() *ProtocolError {
	return &ProtocolError{
		Code:    CodeInternal,
		Message: "an internal error occurred while processing the request",
	}
}
