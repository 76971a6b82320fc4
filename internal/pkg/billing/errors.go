package billing

import "errors"

var (
	// ErrSignatureInvalid rejects a delivery whose signature header is
	// absent, malformed, stale or does not match the raw body.
	ErrSignatureInvalid = errors.New("billing: webhook signature invalid")
	// ErrMalformedEvent marks a verified event missing required fields.
	// It is acknowledged, never retried.
	ErrMalformedEvent = errors.New("billing: malformed event")
	// ErrUnknownEventType marks an event type this service does not handle.
	ErrUnknownEventType = errors.New("billing: unknown event type")
	// ErrStorageUnavailable wraps every failed ledger or payer write so the
	// endpoint can answer 5xx and let the provider retry.
	ErrStorageUnavailable = errors.New("billing: storage unavailable")
	// ErrPayerNotFound is returned when no payer matches a customer or user id.
	ErrPayerNotFound = errors.New("billing: payer not found")
	// ErrGrantInFlight marks a completed purchase whose grant has not landed
	// yet and is still inside the repair window. The delivery must be retried.
	ErrGrantInFlight = errors.New("billing: grant in flight")
)

// Retryable reports whether the provider should redeliver after err.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) || errors.Is(err, ErrGrantInFlight)
}
