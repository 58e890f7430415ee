package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestIntrospectorLoadGroupsColumnsByTable(t *testing.T) {
	db, mock := newSQLMock(t)
	columns := []string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "is_primary"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns c")).
		WithArgs("world").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("city", "id", "integer", "int4", "NO", true).
			AddRow("city", "name", "text", "text", "NO", false).
			AddRow("city", "population", "integer", "int4", "YES", false).
			AddRow("country", "code", "character", "bpchar", "NO", true))

	desc, err := NewIntrospector(db, "world").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(desc.Tables) != 2 {
		t.Fatalf("tables = %d", len(desc.Tables))
	}
	city := desc.Tables[0]
	if city.Name != "city" || city.Schema != "world" || len(city.Columns) != 3 {
		t.Fatalf("city = %#v", city)
	}
	if !city.Columns[0].PrimaryKey || city.Columns[0].Format != "int4" {
		t.Fatalf("city.id = %#v", city.Columns[0])
	}
	if city.Columns[1].Format != "" {
		t.Fatalf("city.name format = %q", city.Columns[1].Format)
	}
	if *city.Columns[1].Nullable || !*city.Columns[2].Nullable {
		t.Fatal("nullability not mapped from is_nullable")
	}
	if desc.Tables[1].Columns[0].Name != "code" {
		t.Fatalf("country = %#v", desc.Tables[1])
	}
	assertSQLMock(t, mock)
}

func TestIntrospectorDefaultsToPublicSchema(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns c")).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "udt_name", "is_nullable", "is_primary"}))

	desc, err := NewIntrospector(db, "").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !desc.IsEmpty() {
		t.Fatalf("desc = %#v", desc)
	}
	assertSQLMock(t, mock)
}

func TestIntrospectorPropagatesQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns c")).
		WillReturnError(errors.New("permission denied"))

	if _, err := NewIntrospector(db, "public").Load(context.Background()); err == nil {
		t.Fatal("Load() expected error")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
