package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"casegov/internal/record"
	"casegov/pkg/platform/sentinel"
)

// PostgresStore backs the persistence boundary with PostgreSQL. Schema lives
// in schema.sql next to this file.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Health checks database reachability.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Fetch(ctx context.Context, entityType record.EntityType, id string) (record.Record, error) {
	recs, err := s.FetchMany(ctx, entityType, []string{id})
	if err != nil {
		return nil, err
	}
	rec, ok := recs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *PostgresStore) FetchMany(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error) {
	if len(ids) == 0 {
		return map[string]record.Record{}, nil
	}

	query, scan, err := selectFor(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("fetch %s records: %w", entityType, err)
	}
	defer rows.Close()

	out := make(map[string]record.Record, len(ids))
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s record: %w", entityType, err)
		}
		out[rec.RecordID()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s records: %w", entityType, err)
	}
	return out, nil
}

type scanFunc func(*sql.Rows) (record.Record, error)

func selectFor(entityType record.EntityType) (string, scanFunc, error) {
	switch entityType {
	case record.EntityCase:
		return `
			SELECT id, status, type, sub_type, reason_code,
			       account_id, contact_id, asset_id, work_order_id, quote_id,
			       service_type, service_date, created_at,
			       customer_po, profile_number, project_site_info, description,
			       value, priority, risk_flag, approval_status,
			       open_task_ids, related_case_ids, quote_ids
			FROM cases WHERE id = ANY($1)
		`, scanCase, nil
	case record.EntityAccount:
		return `
			SELECT id, name, kind, parent_id, phone, city, region
			FROM accounts WHERE id = ANY($1)
		`, scanAccount, nil
	case record.EntityContact:
		return `
			SELECT id, account_id, name, email, phone
			FROM contacts WHERE id = ANY($1)
		`, scanContact, nil
	case record.EntityAsset:
		return `
			SELECT id, account_id, name, serial_number, status, installed_at
			FROM assets WHERE id = ANY($1)
		`, scanAsset, nil
	case record.EntityTask:
		return `
			SELECT id, case_id, subject, status, owner_id, due_date
			FROM tasks WHERE id = ANY($1)
		`, scanTask, nil
	case record.EntityWorkOrder:
		return `
			SELECT id, case_id, status, scheduled_for
			FROM work_orders WHERE id = ANY($1)
		`, scanWorkOrder, nil
	case record.EntityQuote:
		return `
			SELECT id, case_id, status, amount
			FROM quotes WHERE id = ANY($1)
		`, scanQuote, nil
	}
	return "", nil, fmt.Errorf("unknown entity type %q", entityType)
}

func scanCase(rows *sql.Rows) (record.Record, error) {
	var c record.Case
	var serviceDate sql.NullTime
	err := rows.Scan(
		&c.ID, &c.Status, &c.Type, &c.SubType, &c.ReasonCode,
		&c.AccountID, &c.ContactID, &c.AssetID, &c.WorkOrderID, &c.QuoteID,
		&c.ServiceType, &serviceDate, &c.CreatedAt,
		&c.CustomerPO, &c.ProfileNumber, &c.ProjectSiteInfo, &c.Description,
		&c.Value, &c.Priority, &c.RiskFlag, &c.ApprovalStatus,
		pq.Array(&c.OpenTaskIDs), pq.Array(&c.RelatedCaseIDs), pq.Array(&c.QuoteIDs),
	)
	if err != nil {
		return nil, err
	}
	if serviceDate.Valid {
		c.ServiceDate = &serviceDate.Time
	}
	return c, nil
}

func scanAccount(rows *sql.Rows) (record.Record, error) {
	var a record.Account
	if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.ParentID, &a.Phone, &a.City, &a.Region); err != nil {
		return nil, err
	}
	return a, nil
}

func scanContact(rows *sql.Rows) (record.Record, error) {
	var c record.Contact
	if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone); err != nil {
		return nil, err
	}
	return c, nil
}

func scanAsset(rows *sql.Rows) (record.Record, error) {
	var a record.Asset
	var installedAt sql.NullTime
	if err := rows.Scan(&a.ID, &a.AccountID, &a.Name, &a.SerialNumber, &a.Status, &installedAt); err != nil {
		return nil, err
	}
	if installedAt.Valid {
		a.InstalledAt = &installedAt.Time
	}
	return a, nil
}

func scanTask(rows *sql.Rows) (record.Record, error) {
	var t record.Task
	var dueDate sql.NullTime
	if err := rows.Scan(&t.ID, &t.CaseID, &t.Subject, &t.Status, &t.OwnerID, &dueDate); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.Time
	}
	return t, nil
}

func scanWorkOrder(rows *sql.Rows) (record.Record, error) {
	var w record.WorkOrder
	var scheduledFor sql.NullTime
	if err := rows.Scan(&w.ID, &w.CaseID, &w.Status, &scheduledFor); err != nil {
		return nil, err
	}
	if scheduledFor.Valid {
		w.ScheduledFor = &scheduledFor.Time
	}
	return w, nil
}

func scanQuote(rows *sql.Rows) (record.Record, error) {
	var q record.Quote
	if err := rows.Scan(&q.ID, &q.CaseID, &q.Status, &q.Amount); err != nil {
		return nil, err
	}
	return q, nil
}

// writableColumns maps patch field names to table columns per entity type.
var writableColumns = map[record.EntityType]map[string]string{
	record.EntityCase: {
		"status": "status", "subType": "sub_type", "reasonCode": "reason_code",
		"assetId": "asset_id", "workOrderId": "work_order_id", "quoteId": "quote_id",
		"serviceDate": "service_date", "customerPO": "customer_po",
		"profileNumber": "profile_number", "projectSiteInfo": "project_site_info",
		"description": "description", "value": "value", "priority": "priority",
		"riskFlag": "risk_flag", "approvalStatus": "approval_status",
	},
	record.EntityTask:      {"status": "status", "subject": "subject"},
	record.EntityWorkOrder: {"status": "status"},
	record.EntityQuote:     {"status": "status", "amount": "amount"},
}

var tableNames = map[record.EntityType]string{
	record.EntityCase:      "cases",
	record.EntityAccount:   "accounts",
	record.EntityContact:   "contacts",
	record.EntityAsset:     "assets",
	record.EntityTask:      "tasks",
	record.EntityWorkOrder: "work_orders",
	record.EntityQuote:     "quotes",
}

// Write applies a patch as one UPDATE. Unknown fields are reported in
// WriteResult.Errors; the remaining fields are still applied.
func (s *PostgresStore) Write(ctx context.Context, patch Patch) (WriteResult, error) {
	allowed, ok := writableColumns[patch.EntityType]
	if !ok {
		return WriteResult{Success: false, Errors: []string{
			fmt.Sprintf("records of type %q are read-only", patch.EntityType),
		}}, nil
	}

	var (
		sets []string
		args []any
		errs []string
	)
	for name, value := range patch.Fields {
		col, ok := allowed[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("field %q is not writable on %s records", name, patch.EntityType))
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if len(sets) == 0 {
		return WriteResult{Success: false, Errors: errs}, nil
	}

	args = append(args, patch.ID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		tableNames[patch.EntityType], strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s record: %w", patch.EntityType, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s record: %w", patch.EntityType, err)
	}
	if affected == 0 {
		return WriteResult{}, sentinel.ErrNotFound
	}

	return WriteResult{Success: len(errs) == 0, Errors: errs}, nil
}
