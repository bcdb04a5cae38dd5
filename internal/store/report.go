package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/types"
)

// ReportRepository handles persistence for reports.
type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, name, id_number, fine, date, location, description, status, deleted, created_by, evidence_keys, created_at, updated_at`

func (r *ReportRepository) Create(ctx context.Context, report types.Report) (types.Report, error) {
	now := time.Now()
	report.CreatedAt = now
	report.UpdatedAt = now

	keysJSON, err := marshalEvidenceKeys(report.EvidenceKeys)
	if err != nil {
		return types.Report{}, err
	}

	const query = `
		INSERT INTO reports (id, name, id_number, fine, date, location, description, status, deleted, created_by, evidence_keys, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		report.ID,
		report.Name,
		report.IDNumber,
		report.Fine,
		report.Date,
		report.Location,
		report.Description,
		report.Status,
		report.Deleted,
		report.CreatedBy,
		keysJSON,
		report.CreatedAt,
		report.UpdatedAt,
	); err != nil {
		return types.Report{}, err
	}
	return report, nil
}

// GetByID fetches a report by id alone. The deleted flag is not
// checked here: owners keep by-id visibility into soft-deleted reports.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (types.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Report{}, ErrNotFound
		}
		return types.Report{}, err
	}
	return report, nil
}

// List applies the visibility filter computed by the authorization
// engine and returns matching reports.
func (r *ReportRepository) List(ctx context.Context, filter authz.Filter) ([]types.Report, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 4)

	if filter.ExcludeDeleted {
		conditions = append(conditions, "deleted = false")
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR id_number ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]types.Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *ReportRepository) Update(ctx context.Context, report types.Report) (types.Report, error) {
	report.UpdatedAt = time.Now()

	keysJSON, err := marshalEvidenceKeys(report.EvidenceKeys)
	if err != nil {
		return types.Report{}, err
	}

	const query = `
		UPDATE reports
		SET name = $1,
			id_number = $2,
			location = $3,
			description = $4,
			status = $5,
			evidence_keys = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		report.Name,
		report.IDNumber,
		report.Location,
		report.Description,
		report.Status,
		keysJSON,
		report.UpdatedAt,
		report.ID,
	)
	if err != nil {
		return types.Report{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Report{}, err
	}
	if affected == 0 {
		return types.Report{}, ErrNotFound
	}
	return report, nil
}

func (r *ReportRepository) SetStatus(ctx context.Context, id string, status types.ReportStatus) error {
	const query = `
		UPDATE reports
		SET status = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, string(status), time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDeleted marks the report soft-deleted. There is no reverse
// transition and no hard delete of reports.
func (r *ReportRepository) SetDeleted(ctx context.Context, id string) error {
	const query = `
		UPDATE reports
		SET deleted = true,
			updated_at = $1
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (types.Report, error) {
	var report types.Report
	var keysJSON []byte
	if err := row.Scan(
		&report.ID,
		&report.Name,
		&report.IDNumber,
		&report.Fine,
		&report.Date,
		&report.Location,
		&report.Description,
		&report.Status,
		&report.Deleted,
		&report.CreatedBy,
		&keysJSON,
		&report.CreatedAt,
		&report.UpdatedAt,
	); err != nil {
		return types.Report{}, err
	}
	_ = json.Unmarshal(keysJSON, &report.EvidenceKeys)
	return report, nil
}

func marshalEvidenceKeys(keys []string) ([]byte, error) {
	if keys == nil {
		keys = []string{}
	}
	return json.Marshal(keys)
}
