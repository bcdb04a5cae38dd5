package services

import (
	"errors"

	"github.com/reported-users/apiserver/internal/authz"
)

// Domain failures form a closed set. Handlers map these to transport
// status codes; anything outside the set surfaces as a generic server
// error so internal detail never reaches clients.
var (
	// ErrUnauthenticated means no valid credential was presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the caller is authenticated but not entitled.
	ErrForbidden = errors.New("no permission to access this resource")

	// ErrAdminRequired means the operation is reserved for admins.
	ErrAdminRequired = errors.New("admin access required")

	// ErrReportAccess merges "report does not exist" and "report is not
	// yours" so denials never confirm a report's existence.
	ErrReportAccess = errors.New("report not found or no permission to access it")

	// ErrInvalidCredentials is the single generic login failure. It
	// never reveals whether the email exists.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering with an email that is
	// already in use.
	ErrEmailTaken = errors.New("user with this email already exists")

	// ErrInvalidStatus is returned for an unknown report status value.
	ErrInvalidStatus = errors.New("invalid report status")

	// ErrStorageDisabled is returned when evidence storage is not
	// configured.
	ErrStorageDisabled = errors.New("evidence storage is not configured")
)

// denyError translates an authorization denial into the matching
// domain error.
func denyError(decision authz.Decision) error {
	switch decision.Reason {
	case authz.ReasonUnauthenticated:
		return ErrUnauthenticated
	case authz.ReasonNotFoundOrForbidden:
		return ErrReportAccess
	case authz.ReasonForbidden:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}
