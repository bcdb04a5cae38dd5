package types

import "time"

// ReportStatus is the lifecycle state of a report.
type ReportStatus string

const (
	// StatusDraft is the only legal state at creation.
	StatusDraft ReportStatus = "draft"
	// StatusActive is reached only through an admin status transition.
	StatusActive ReportStatus = "active"
)

// Valid reports whether s is a known report status.
func (s ReportStatus) Valid() bool {
	return s == StatusDraft || s == StatusActive
}

// Report represents a reported-user record.
type Report struct {
	// ID is the unique identifier of the report, generated at creation.
	ID string `json:"id" db:"id"`

	// Name is the reported person's name.
	Name string `json:"name" db:"name"`

	// IDNumber is the reported person's identity document number.
	IDNumber string `json:"id_number" db:"id_number"`

	// Fine is the fine amount associated with the report.
	Fine int `json:"fine" db:"fine"`

	// Date is when the reported incident was recorded.
	Date time.Time `json:"date" db:"date"`

	// Location is where the reported incident took place.
	Location string `json:"location" db:"location"`

	// Description holds free-form details about the report.
	Description string `json:"description" db:"description"`

	// Status is the lifecycle state: draft until an admin activates it.
	Status ReportStatus `json:"status" db:"status"`

	// Deleted is the soft-delete flag. Once true the report is excluded
	// from every list path but remains stored.
	Deleted bool `json:"deleted" db:"deleted"`

	// CreatedBy is the owning account id, set once at creation.
	CreatedBy string `json:"created_by" db:"created_by"`

	// EvidenceKeys lists object-storage keys of evidence files attached
	// to the report.
	EvidenceKeys []string `json:"evidence_keys,omitempty" db:"evidence_keys"`

	// CreatedAt is the timestamp when the report was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is refreshed on every mutation of the report.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
