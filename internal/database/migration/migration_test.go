package migration

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"rtodocs/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sentinelQuery = "SELECT to_regclass('public.documents') IS NOT NULL"

func TestEnsureMigrated(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(mock sqlmock.Sqlmock)
		wantErr   string
		wantEvent string
	}{
		{
			name: "schema exists",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(sentinelQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantEvent: "db_migration_skip",
		},
		{
			name: "fresh database",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(sentinelQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				for _, step := range steps {
					mock.ExpectExec(regexp.QuoteMeta(step.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
				}
			},
			wantEvent: "db_migration_success",
		},
		{
			name: "sentinel check fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(sentinelQuery)).WillReturnError(errors.New("conn refused"))
			},
			wantErr:   "failed to check sentinel table: conn refused",
			wantEvent: "db_migration_failed",
		},
		{
			name: "step fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(sentinelQuery)).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
				mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta(steps[1].SQL)).WillReturnError(errors.New("permission denied"))
			},
			wantErr:   "migration step create_table_documents failed: permission denied",
			wantEvent: "db_migration_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			buf := &bytes.Buffer{}
			err = EnsureMigrated(context.Background(), db, logging.New(buf, time.UTC), "db.local")
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, buf.String(), `"event":"`+tt.wantEvent+`"`)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSchemaColumns(t *testing.T) {
	ddl := steps[1].SQL
	for _, col := range []string{
		"user_id", "entity_type", "entity_id", "document_type", "file_path", "file_name",
		"mime_type", "size", "status", "verified_by", "verified_at", "created_at",
	} {
		assert.Contains(t, ddl, col)
	}
	assert.Contains(t, ddl, "file_path     TEXT        NOT NULL UNIQUE")
	assert.Contains(t, ddl, "CHECK (status IN ('PENDING', 'VERIFIED', 'REJECTED'))")
}
