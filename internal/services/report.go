package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/internal/storage"
	"github.com/reported-users/apiserver/internal/store"
	"github.com/reported-users/apiserver/types"
)

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	Create(ctx context.Context, report types.Report) (types.Report, error)
	GetByID(ctx context.Context, id string) (types.Report, error)
	List(ctx context.Context, filter authz.Filter) ([]types.Report, error)
	Update(ctx context.Context, report types.Report) (types.Report, error)
	SetStatus(ctx context.Context, id string, status types.ReportStatus) error
	SetDeleted(ctx context.Context, id string) error
}

// Publisher publishes report events to a broker channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ReportService encapsulates report use-cases. Every access decision is
// delegated to the authorization engine before the repository is
// touched.
type ReportService struct {
	repo         ReportRepository
	storage      *storage.Storage
	publisher    Publisher
	eventChannel string
}

func NewReportService(repo ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

// WithStorage attaches evidence storage to the service.
func (s *ReportService) WithStorage(st *storage.Storage) *ReportService {
	s.storage = st
	return s
}

// WithPublisher attaches a broker used to announce status transitions.
func (s *ReportService) WithPublisher(publisher Publisher, channel string) *ReportService {
	s.publisher = publisher
	s.eventChannel = channel
	return s
}

// CreateReportInput carries the creation payload. Reports are always
// created as drafts owned by the caller.
type CreateReportInput struct {
	Name        string
	IDNumber    string
	Fine        int
	Location    string
	Description string
}

// UpdateReportInput carries field edits. A non-nil Status requests a
// lifecycle change, which is admin-gated on top of the ownership check.
type UpdateReportInput struct {
	Name        string
	IDNumber    string
	Location    string
	Description string
	Status      *types.ReportStatus
}

// StatusEvent is the payload published when a report's status changes.
type StatusEvent struct {
	ReportID   string             `json:"report_id"`
	Status     types.ReportStatus `json:"status"`
	ActorID    string             `json:"actor_id"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func (s *ReportService) Create(ctx context.Context, actor authz.Actor, input CreateReportInput) (types.Report, error) {
	if decision := authz.CanCreate(actor); !decision.Allowed {
		return types.Report{}, denyError(decision)
	}

	return s.repo.Create(ctx, types.Report{
		ID:          uuid.NewString(),
		Name:        input.Name,
		IDNumber:    input.IDNumber,
		Fine:        input.Fine,
		Date:        time.Now(),
		Location:    input.Location,
		Description: input.Description,
		Status:      types.StatusDraft,
		CreatedBy:   actor.AccountID,
	})
}

// GetByID returns a single report for its owner. The deleted flag is
// deliberately not checked: owners keep by-id visibility into
// soft-deleted reports.
func (s *ReportService) GetByID(ctx context.Context, actor authz.Actor, id string) (types.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Report{}, ErrReportAccess
		}
		return types.Report{}, err
	}
	if decision := authz.CanView(actor, report.CreatedBy); !decision.Allowed {
		return types.Report{}, denyError(decision)
	}
	return report, nil
}

// ListOwn returns the caller's non-deleted reports.
func (s *ReportService) ListOwn(ctx context.Context, actor authz.Actor) ([]types.Report, error) {
	filter, decision := authz.OwnListing(actor)
	if !decision.Allowed {
		return nil, denyError(decision)
	}
	return s.repo.List(ctx, filter)
}

// ListDrafts returns all non-deleted drafts across owners. Admin-only.
func (s *ReportService) ListDrafts(ctx context.Context, actor authz.Actor) ([]types.Report, error) {
	filter, decision := authz.DraftListing(actor)
	if !decision.Allowed {
		if decision.Reason == authz.ReasonForbidden {
			return nil, ErrAdminRequired
		}
		return nil, denyError(decision)
	}
	return s.repo.List(ctx, filter)
}

// Search returns non-deleted active reports across all owners,
// text-filtered on name or id number when a query is supplied.
func (s *ReportService) Search(ctx context.Context, actor authz.Actor, query string) ([]types.Report, error) {
	filter, decision := authz.ActiveSearch(actor, query)
	if !decision.Allowed {
		return nil, denyError(decision)
	}
	return s.repo.List(ctx, filter)
}

// Update applies field edits. Ownership passes for the owner or an
// admin; a requested status change additionally requires admin. The
// deleted flag is never touched by updates.
func (s *ReportService) Update(ctx context.Context, actor authz.Actor, id string, input UpdateReportInput) (types.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Report{}, ErrReportAccess
		}
		return types.Report{}, err
	}

	statusChange := input.Status != nil
	if decision := authz.CanUpdate(actor, report.CreatedBy, statusChange); !decision.Allowed {
		if decision.Reason == authz.ReasonForbidden {
			return types.Report{}, ErrAdminRequired
		}
		return types.Report{}, denyError(decision)
	}

	report.Name = input.Name
	report.IDNumber = input.IDNumber
	report.Location = input.Location
	report.Description = input.Description
	if statusChange {
		if !input.Status.Valid() {
			return types.Report{}, ErrInvalidStatus
		}
		report.Status = *input.Status
	}

	return s.repo.Update(ctx, report)
}

// SetStatus transitions a report's lifecycle state. Admin-only
// regardless of ownership; the owner is denied like anyone else.
func (s *ReportService) SetStatus(ctx context.Context, actor authz.Actor, id string, status types.ReportStatus) error {
	if decision := authz.CanSetStatus(actor); !decision.Allowed {
		if decision.Reason == authz.ReasonForbidden {
			return ErrAdminRequired
		}
		return denyError(decision)
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}

	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}

	s.publishStatusEvent(ctx, StatusEvent{
		ReportID:   id,
		Status:     status,
		ActorID:    actor.AccountID,
		OccurredAt: time.Now(),
	})
	return nil
}

// SoftDelete marks a report deleted. Owner-only; the record persists
// and is excluded from every list path afterwards.
func (s *ReportService) SoftDelete(ctx context.Context, actor authz.Actor, id string) error {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrReportAccess
		}
		return err
	}
	if decision := authz.CanSoftDelete(actor, report.CreatedBy); !decision.Allowed {
		return denyError(decision)
	}
	return s.repo.SetDeleted(ctx, id)
}

// AttachEvidence stores an evidence file for the report and records its
// key. Owner-only.
func (s *ReportService) AttachEvidence(ctx context.Context, actor authz.Actor, id, filename, contentType string, data []byte) (string, error) {
	if s.storage == nil {
		return "", ErrStorageDisabled
	}

	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrReportAccess
		}
		return "", err
	}
	if decision := authz.CanAttachEvidence(actor, report.CreatedBy); !decision.Allowed {
		return "", denyError(decision)
	}

	key := fmt.Sprintf("%s/%s-%s", report.ID, uuid.NewString(), path.Base(filename))
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}

	report.EvidenceKeys = append(report.EvidenceKeys, key)
	if _, err := s.repo.Update(ctx, report); err != nil {
		return "", err
	}
	return key, nil
}

// ListEvidence returns the evidence keys recorded on the report.
// Owner-only.
func (s *ReportService) ListEvidence(ctx context.Context, actor authz.Actor, id string) ([]string, error) {
	report, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return report.EvidenceKeys, nil
}

// OpenEvidence opens a reader for one evidence object. Owner-only, and
// only keys recorded on the report are served.
func (s *ReportService) OpenEvidence(ctx context.Context, actor authz.Actor, id, key string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}

	report, err := s.GetByID(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	found := false
	for _, recorded := range report.EvidenceKeys {
		if recorded == key {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrReportAccess
	}

	return s.storage.Get(ctx, key)
}

// publishStatusEvent announces a status change on the configured
// channel. Publish failures are logged, not returned: the transition
// already committed.
func (s *ReportService) publishStatusEvent(ctx context.Context, event StatusEvent) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to encode report status event: %v", err)
		return
	}
	attrs := map[string]string{"status": string(event.Status)}
	if _, err := s.publisher.Publish(ctx, s.eventChannel, payload, attrs); err != nil {
		log.Printf("failed to publish report status event: %v", err)
	}
}
