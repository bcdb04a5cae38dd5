// Package authz is the authorization engine: pure decision logic over a
// resolved actor and a target record. It performs no I/O and never
// mutates state; services apply its verdicts and filters.
package authz

import (
	"strings"

	"github.com/reported-users/apiserver/types"
)

// DenyReason classifies why an operation was denied.
type DenyReason int

const (
	// ReasonNone means the operation was allowed.
	ReasonNone DenyReason = iota
	// ReasonUnauthenticated means no valid credential was presented.
	ReasonUnauthenticated
	// ReasonForbidden means the caller is authenticated but not entitled.
	ReasonForbidden
	// ReasonNotFoundOrForbidden merges "does not exist" and "not yours"
	// so that per-record denials never confirm a record's existence.
	ReasonNotFoundOrForbidden
)

// Actor is the resolved identity of the caller for one request.
// A zero Actor is unauthenticated.
type Actor struct {
	AccountID     string
	Admin         bool
	Authenticated bool
}

// Decision is the typed allow/deny verdict for one operation.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Filter is the declarative visibility predicate for list-style reads.
// The store translates it into a query; Matches applies it in memory.
type Filter struct {
	// OwnerID restricts results to records created by this account
	// when nonempty.
	OwnerID string

	// Status restricts results to this lifecycle state when nonempty.
	Status types.ReportStatus

	// Query is a case-insensitive substring match against name or
	// id number. Empty means no text filter.
	Query string

	// ExcludeDeleted drops soft-deleted records.
	ExcludeDeleted bool
}

// Matches reports whether the report satisfies the filter.
func (f Filter) Matches(report types.Report) bool {
	if f.ExcludeDeleted && report.Deleted {
		return false
	}
	if f.OwnerID != "" && report.CreatedBy != f.OwnerID {
		return false
	}
	if f.Status != "" && report.Status != f.Status {
		return false
	}
	if f.Query != "" {
		query := strings.ToLower(f.Query)
		name := strings.ToLower(report.Name)
		idNumber := strings.ToLower(report.IDNumber)
		if !strings.Contains(name, query) && !strings.Contains(idNumber, query) {
			return false
		}
	}
	return true
}

// CanCreate decides whether the actor may create a report.
func CanCreate(actor Actor) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	return Allow()
}

// OwnListing returns the visibility filter for the actor's own reports.
func OwnListing(actor Actor) (Filter, Decision) {
	if !actor.Authenticated {
		return Filter{}, Deny(ReasonUnauthenticated)
	}
	return Filter{OwnerID: actor.AccountID, ExcludeDeleted: true}, Allow()
}

// ActiveSearch returns the visibility filter for searching active
// reports across all owners.
func ActiveSearch(actor Actor, query string) (Filter, Decision) {
	if !actor.Authenticated {
		return Filter{}, Deny(ReasonUnauthenticated)
	}
	return Filter{
		Status:         types.StatusActive,
		Query:          strings.TrimSpace(query),
		ExcludeDeleted: true,
	}, Allow()
}

// DraftListing returns the admin-only filter over all draft reports.
func DraftListing(actor Actor) (Filter, Decision) {
	if !actor.Authenticated {
		return Filter{}, Deny(ReasonUnauthenticated)
	}
	if !actor.Admin {
		return Filter{}, Deny(ReasonForbidden)
	}
	return Filter{Status: types.StatusDraft, ExcludeDeleted: true}, Allow()
}

// CanView decides per-record read access. Strictly owner-only: an
// admin does not bypass ownership on reads.
func CanView(actor Actor, createdBy string) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if actor.AccountID != createdBy {
		return Deny(ReasonNotFoundOrForbidden)
	}
	return Allow()
}

// CanUpdate decides field-edit access. Ownership passes for the owner
// or an admin; a requested status change additionally requires admin.
func CanUpdate(actor Actor, createdBy string, statusChange bool) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if actor.AccountID != createdBy && !actor.Admin {
		return Deny(ReasonNotFoundOrForbidden)
	}
	if statusChange && !actor.Admin {
		return Deny(ReasonForbidden)
	}
	return Allow()
}

// CanSoftDelete decides soft-delete access. Owner-only; an admin does
// not bypass ownership.
func CanSoftDelete(actor Actor, createdBy string) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if actor.AccountID != createdBy {
		return Deny(ReasonNotFoundOrForbidden)
	}
	return Allow()
}

// CanAttachEvidence decides evidence upload access. Owner-only, like
// the other record mutations that bypass neither ownership nor admin.
func CanAttachEvidence(actor Actor, createdBy string) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if actor.AccountID != createdBy {
		return Deny(ReasonNotFoundOrForbidden)
	}
	return Allow()
}

// CanSetStatus decides status-transition access. Admin-only regardless
// of ownership; the owner is denied like anyone else.
func CanSetStatus(actor Actor) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if !actor.Admin {
		return Deny(ReasonForbidden)
	}
	return Allow()
}

// CanAccessAccount decides account read/update/delete access.
// Accounts are self-only; admins get no special access to accounts.
func CanAccessAccount(actor Actor, accountID string) Decision {
	if !actor.Authenticated {
		return Deny(ReasonUnauthenticated)
	}
	if actor.AccountID != accountID {
		return Deny(ReasonForbidden)
	}
	return Allow()
}
