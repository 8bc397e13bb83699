package validate

import "errors"

var (
	// ErrInvalidAppID is returned when an app_id does not match the
	// DNS-label format (1-63 lowercase alphanumeric + hyphens).
	ErrInvalidAppID = errors.New("invalid app_id")

	// ErrInvalidNetworkName is returned when a network_id does not match
	// the DNS-label format (1-63 lowercase alphanumeric + hyphens).
	ErrInvalidNetworkName = errors.New("invalid network name")
)
