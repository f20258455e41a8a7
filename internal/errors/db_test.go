package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.err)
			if got := GetCode(mapped); got != tt.wantCode {
				t.Errorf("GetCode = %q, want %q", got, tt.wantCode)
			}
			if !errors.Is(mapped, tt.err) {
				t.Error("mapped error should wrap the original")
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	mapped := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(mapped) {
		t.Errorf("expected not_found, got %v", mapped)
	}
}

func TestMapDBError_PgErrors(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
	}{
		{
			name: "unique violation with composite key detail",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (producer_kind, source_identifier, entity_id)=(telegram, https://t.me/g, 42) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "producer_kind, source_identifier, entity_id",
		},
		{
			name: "unique violation with column name",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				ColumnName: "external_job_id",
			},
			wantCode:  ErrCodeConflict,
			wantField: "external_job_id",
		},
		{
			name:      "check violation",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "resurrect_count"},
			wantCode:  ErrCodeValidation,
			wantField: "resurrect_count",
		},
		{
			name:      "not null violation",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "entity_id"},
			wantCode:  ErrCodeValidation,
			wantField: "entity_id",
		},
		{
			name:     "foreign key violation",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			wantCode: ErrCodeStoreWrite,
		},
		{
			name:     "connection failure",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			wantCode: ErrCodeStoreWrite,
		},
		{
			name:     "admin shutdown",
			pgErr:    &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			wantCode: ErrCodeStoreWrite,
		},
		{
			name:     "invalid password",
			pgErr:    &pgconn.PgError{Code: pgerrcode.InvalidPassword},
			wantCode: ErrCodeConfig,
		},
		{
			name:     "unrecognized pg error",
			pgErr:    &pgconn.PgError{Code: pgerrcode.DivisionByZero},
			wantCode: ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.pgErr)
			if got := GetCode(mapped); got != tt.wantCode {
				t.Errorf("GetCode = %q, want %q", got, tt.wantCode)
			}
			if got := GetField(mapped); got != tt.wantField {
				t.Errorf("GetField = %q, want %q", got, tt.wantField)
			}
			if !errors.Is(mapped, tt.pgErr) {
				t.Error("mapped error should wrap the pg error")
			}
		})
	}
}

func TestMapDBError_PassThrough(t *testing.T) {
	plain := errors.New("not a database error")
	if got := MapDBError(plain); got != plain {
		t.Errorf("MapDBError should return unrecognized errors unchanged, got %v", got)
	}
}
