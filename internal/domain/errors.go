package domain

import "errors"

var (
	// ErrMissingIdentity is returned when an identity is absent or blank.
	ErrMissingIdentity = errors.New("missing identity")
	// ErrInvalidIdentity is returned when an identity fails validation.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrNoMatchAvailable is returned when nobody else is online.
	ErrNoMatchAvailable = errors.New("no match available")
	// ErrTargetUnreachable is returned when a signaling target is not present.
	ErrTargetUnreachable = errors.New("target unreachable")
	// ErrDuplicateAcceptance marks a suppressed repeat acceptCall.
	ErrDuplicateAcceptance = errors.New("duplicate acceptance")
	// ErrDuplicateTermination marks a termination inside the debounce window.
	ErrDuplicateTermination = errors.New("duplicate termination")
	// ErrInvalidConsentRequest is returned for malformed consent advancement.
	ErrInvalidConsentRequest = errors.New("invalid consent request")
	// ErrSelfPairing is returned when both identities of a pair are equal.
	ErrSelfPairing = errors.New("identity cannot pair with itself")
)
