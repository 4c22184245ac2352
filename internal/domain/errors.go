package domain

import "errors"

var (
	ErrCourseNotFound   = errors.New("course not found")
	ErrPurchaseNotFound = errors.New("purchase not found")

	ErrNoProviderConfigured = errors.New("no payment provider configured for tenant")
	ErrUnknownProvider      = errors.New("unrecognized payment provider")

	// ErrProviderUnavailable marks transient provider communication
	// failures. Safe for the caller to retry; any INITIATED purchase left
	// behind is picked up by reconciliation.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrAnomalousConfirmation marks a webhook that confirms a purchase
	// already FAILED or references a purchase that does not exist. Logged
	// for operator review, never auto-resolved.
	ErrAnomalousConfirmation = errors.New("anomalous payment confirmation")
)
