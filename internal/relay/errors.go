package relay

import "errors"

var (
	// ErrTransientDelivery marks a notification that could not be routed.
	// It is logged and never surfaced to the sender.
	ErrTransientDelivery = errors.New("transient delivery failure")

	ErrMissingToken = errors.New("authentication token not provided")
)
