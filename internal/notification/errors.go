package notification

import "errors"

var (
	// ErrTenantUnknown is returned when an operation names a tenant that
	// has not been onboarded.
	ErrTenantUnknown = errors.New("notification: tenant not onboarded")

	// ErrNotConnected is returned when an operation requires a live
	// transport and none is registered for the tenant.
	ErrNotConnected = errors.New("notification: no connection for tenant")
)
