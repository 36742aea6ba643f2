//go:build integration

package store

import (
	"context"
	_ "embed"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casegov/internal/record"
	"casegov/pkg/platform/sentinel"
	"casegov/pkg/testutil/containers"
)

//go:embed schema.sql
var schemaSQL string

// ============================================================
// Postgres Store Integration Suite
// ============================================================

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(s.pg.Apply(s.ctx, schemaSQL))
	s.store = NewPostgresStore(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	for _, table := range []string{"cases", "accounts", "contacts", "assets", "tasks", "work_orders", "quotes"} {
		_, err := s.pg.DB.ExecContext(s.ctx, "TRUNCATE "+table)
		s.Require().NoError(err)
	}

	_, err := s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO cases (id, status, service_type, account_id, value, priority, risk_flag,
		                   service_date, open_task_ids, quote_ids)
		VALUES ('case-1', 'In Progress', 'New Service', 'acct-1', 60000, 'High', TRUE,
		        '2026-03-09T09:00:00Z', '{task-1,task-2}', '{quote-1}')
	`)
	s.Require().NoError(err)

	_, err = s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO tasks (id, case_id, subject, status)
		VALUES ('task-1', 'case-1', 'Call customer', 'Open'),
		       ('task-2', 'case-1', 'Schedule install', 'Open')
	`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestHealth() {
	s.NoError(s.store.Health(s.ctx))
}

func (s *PostgresStoreSuite) TestFetchCase() {
	rec, err := s.store.Fetch(s.ctx, record.EntityCase, "case-1")
	s.Require().NoError(err)

	c, ok := rec.(record.Case)
	s.Require().True(ok)
	s.Equal("case-1", c.ID)
	s.Equal("In Progress", c.Status)
	s.Equal("New Service", c.ServiceType)
	s.Equal(60000.0, c.Value)
	s.True(c.RiskFlag)
	s.Equal([]string{"task-1", "task-2"}, c.OpenTaskIDs)
	s.Equal([]string{"quote-1"}, c.QuoteIDs)
	s.Require().NotNil(c.ServiceDate)
	s.Equal(time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC), c.ServiceDate.UTC())
}

func (s *PostgresStoreSuite) TestFetchMissing() {
	_, err := s.store.Fetch(s.ctx, record.EntityCase, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestFetchManyReturnsExistingSubset() {
	recs, err := s.store.FetchMany(s.ctx, record.EntityTask, []string{"task-1", "task-2", "ghost"})
	s.Require().NoError(err)
	s.Len(recs, 2)
	s.Contains(recs, "task-1")
	s.Contains(recs, "task-2")
	s.NotContains(recs, "ghost")
}

func (s *PostgresStoreSuite) TestFetchManyEmptyIDs() {
	recs, err := s.store.FetchMany(s.ctx, record.EntityCase, nil)
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *PostgresStoreSuite) TestWriteAppliesPatch() {
	result, err := s.store.Write(s.ctx, Patch{
		EntityType: record.EntityCase,
		ID:         "case-1",
		Fields:     map[string]any{"status": "On Hold", "priority": "Low"},
	})
	s.Require().NoError(err)
	s.True(result.Success)
	s.Empty(result.Errors)

	rec, err := s.store.Fetch(s.ctx, record.EntityCase, "case-1")
	s.Require().NoError(err)
	c := rec.(record.Case)
	s.Equal("On Hold", c.Status)
	s.Equal("Low", c.Priority)
}

func (s *PostgresStoreSuite) TestWriteReportsUnknownFields() {
	result, err := s.store.Write(s.ctx, Patch{
		EntityType: record.EntityCase,
		ID:         "case-1",
		Fields:     map[string]any{"status": "On Hold", "nonsense": 1},
	})
	s.Require().NoError(err)
	s.False(result.Success)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "nonsense")

	// The writable portion still landed.
	rec, err := s.store.Fetch(s.ctx, record.EntityCase, "case-1")
	s.Require().NoError(err)
	s.Equal("On Hold", rec.(record.Case).Status)
}

func (s *PostgresStoreSuite) TestWriteMissingRecord() {
	_, err := s.store.Write(s.ctx, Patch{
		EntityType: record.EntityCase,
		ID:         "missing",
		Fields:     map[string]any{"status": "On Hold"},
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestWriteReadOnlyType() {
	result, err := s.store.Write(s.ctx, Patch{
		EntityType: record.EntityAccount,
		ID:         "acct-1",
		Fields:     map[string]any{"name": "Renamed"},
	})
	s.Require().NoError(err)
	s.False(result.Success)
	s.Require().Len(result.Errors, 1)
	s.Contains(result.Errors[0], "read-only")
}
