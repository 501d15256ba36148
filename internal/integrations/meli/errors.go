package meli

import "github.com/pkg/errors"

var (
	// ErrNotFound covers every "could not resolve" outcome: non-200 answers
	// and answers missing the field we were after.
	ErrNotFound = errors.New("meli: not found")

	// ErrCredentialsMissing is returned before any call is attempted when
	// there is neither an access token nor a way to mint one.
	ErrCredentialsMissing = errors.New("meli: credentials missing (access token or app_id/client_secret/refresh_token)")

	// ErrInvalidResponse marks a 2xx answer whose body is not what the
	// endpoint promised (e.g. a label download that is not a PDF).
	ErrInvalidResponse = errors.New("meli: invalid response body")

	// ErrNotPrintable is the sentinel behind NotPrintableError.
	ErrNotPrintable = errors.New("meli: label not printable")
)

// NotPrintableError carries the operator-facing reason why a shipment's
// label cannot be printed right now. Matches ErrNotPrintable under errors.Is.
type NotPrintableError struct {
	Reason string
}

func (e *NotPrintableError) Error() string { return e.Reason }

func (e *NotPrintableError) Is(target error) bool { return target == ErrNotPrintable }
