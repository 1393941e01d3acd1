package task

import (
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrationFilesOrdersByVersion(t *testing.T) {
	source := fstest.MapFS{
		"0002_index.sql": {Data: []byte("ALTER TABLE a ADD INDEX i (b);")},
		"0001_init.sql":  {Data: []byte("CREATE TABLE a (b INT);\n\nCREATE TABLE c (d INT);")},
		"0003_empty.sql": {Data: []byte("  ;  ")},
		"README.md":      {Data: []byte("ignored")},
	}
	files, err := loadMigrationFiles(source)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].version != "0001" || len(files[0].statements) != 2 {
		t.Fatalf("unexpected first migration: %+v", files[0])
	}
	if files[1].version != "0002" || files[1].statements[0] != "ALTER TABLE a ADD INDEX i (b)" {
		t.Fatalf("unexpected second migration: %+v", files[1])
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := loadMigrationFiles(migrationSource)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(files) == 0 || files[0].version != "0001" {
		t.Fatalf("embedded migrations missing: %+v", files)
	}
}

func TestNewMySQLStoreAppliesPendingMigrations(t *testing.T) {
	original := migrationSource
	migrationSource = fstest.MapFS{
		"0001_init.sql": {Data: []byte("CREATE TABLE a2a_tasks (id VARCHAR(8));")},
		"0002_more.sql": {Data: []byte("ALTER TABLE a2a_tasks ADD COLUMN x INT;")},
	}
	t.Cleanup(func() { migrationSource = original })

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE a2a_tasks ADD COLUMN x INT")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("0002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if _, err := NewMySQLStoreWithDB(db); err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrationFailureRollsBack(t *testing.T) {
	original := migrationSource
	migrationSource = fstest.MapFS{
		"0001_init.sql": {Data: []byte("CREATE TABLE a2a_tasks (id VARCHAR(8));")},
	}
	t.Cleanup(func() { migrationSource = original })

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a2a_tasks")).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	if _, err := NewMySQLStoreWithDB(db); err == nil {
		t.Fatalf("expected migration failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
