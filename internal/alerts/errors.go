package alerts

import "errors"

var (
	// ErrRateLimited means the originator hit the alert-creation cap. Retryable
	// after the window passes.
	ErrRateLimited = errors.New("too many alerts, please wait before sending another")

	// ErrNoEmergencyContacts is informational, not fatal: the alert is still
	// created so the originator has a record, but nobody was notified.
	ErrNoEmergencyContacts = errors.New("no emergency contacts in trust circle")

	// ErrInvalidTransition means a mutation was attempted on a terminal alert.
	ErrInvalidTransition = errors.New("alert is already resolved or cancelled")

	ErrNotOriginator        = errors.New("only the alert originator may do this")
	ErrNotTrustCircleMember = errors.New("only trust circle members can respond")
	ErrSelfResponse         = errors.New("cannot respond to your own alert")
	ErrInvalidKind          = errors.New("unknown alert kind")
	ErrInvalidResponseType  = errors.New("unknown response type")
	ErrAlertNotFound        = errors.New("alert not found")
)
