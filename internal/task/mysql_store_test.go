package task

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001").AddRow("0002"))
	store, err := NewMySQLStoreWithDB(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, mock
}

func payloadOf(t *testing.T, task *Task) string {
	t.Helper()
	raw, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestMySQLStoreUpsertInsertsThenReads(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stored := newTask(UpsertParams{ID: "t1", Message: userMessage("/tmp/a.pdf")}, now)

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO a2a_tasks")).
		WithArgs("t1", "", "submitted", sqlmock.AnyArg(), now.UnixMilli(), now.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM a2a_tasks WHERE id = ?")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, stored)))

	task, err := store.Upsert(context.Background(), UpsertParams{ID: "t1", Message: userMessage("/tmp/a.pdf")})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if task.ID != "t1" || task.Status.State != StateSubmitted || task.History[0].Parts[0].Text != "/tmp/a.pdf" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM a2a_tasks WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreMutateLocksRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	current := newTask(UpsertParams{ID: "t1", Message: userMessage("in")}, now.Add(-time.Minute))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM a2a_tasks WHERE id = ? FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, current)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE a2a_tasks SET state = ?, has_artifacts = ?, payload = ?, updated_at = ? WHERE id = ?")).
		WithArgs("completed", true, sqlmock.AnyArg(), now.UnixMilli(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := store.Mutate(context.Background(), "t1", func(task *Task) error {
		task.Artifacts = []Artifact{{Parts: []Part{TextPart("out")}}}
		task.SetStatus(StateCompleted, NewAgentMessage("out"))
		return nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if updated.Status.State != StateCompleted || !updated.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected task: %+v", updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStoreMutateTerminalRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	current := newTask(UpsertParams{ID: "t1", Message: userMessage("in")}, time.Now().UTC())
	current.SetStatus(StateFailed, NewAgentMessage("boom"))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, current)))
	mock.ExpectRollback()

	got, err := store.Mutate(context.Background(), "t1", func(task *Task) error {
		task.SetStatus(StateWorking, nil)
		return nil
	})
	if !errors.Is(err, ErrTaskTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if got == nil || got.Status.State != StateFailed {
		t.Fatalf("expected current snapshot, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStoreListBuildsFilters(t *testing.T) {
	store, mock := newMockStore(t)
	task := newTask(UpsertParams{ID: "t2", Message: userMessage("in")}, time.Now().UTC())
	task.SetStatus(StateFailed, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM a2a_tasks WHERE state IN (?) AND session_id = ? ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs("failed", "s1", 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, task)))

	tasks, err := store.List(context.Background(), BuildListOptions(WithStates(StateFailed), WithSession("s1"), WithLimit(5)))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMySQLStoreStats(t *testing.T) {
	store, mock := newMockStore(t)
	oldest := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newest := oldest.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM a2a_tasks")).
		WillReturnRows(sqlmock.NewRows([]string{"total", "submitted", "working", "completed", "failed", "canceled", "oldest", "newest"}).
			AddRow(4, 1, 0, 2, 1, 0, oldest.UnixMilli(), newest.UnixMilli()))

	stats, err := store.Stats(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := TaskStats{Total: 4, Submitted: 1, Completed: 2, Failed: 1, OldestUpdatedAt: oldest.Unix(), NewestUpdatedAt: newest.Unix()}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
