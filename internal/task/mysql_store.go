package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "mcp-a2a/internal/errors"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录任务状态。任务整体以 JSON 存放在 payload 列，
// 状态、会话与时间列单独冗余出来用于过滤和统计。
type MySQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store, err := NewMySQLStoreWithDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStoreWithDB 使用已有连接创建存储，并执行 deploy/migrations 中尚未应用的脚本。
func NewMySQLStoreWithDB(db *sql.DB) (*MySQLStore, error) {
	store := &MySQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.initSchema(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.runMigrations(ctx)
}

// Upsert 使用 INSERT IGNORE 保证同一 ID 只创建一次，随后读取当前记录。
func (s *MySQLStore) Upsert(ctx context.Context, params UpsertParams) (*Task, error) {
	if err := validateUpsert(params); err != nil {
		return nil, err
	}
	task := newTask(params, s.now())
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务失败")
	}

	const stmt = `INSERT IGNORE INTO a2a_tasks
        (id, session_id, state, has_artifacts, payload, created_at, updated_at)
        VALUES (?, ?, ?, 0, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		task.ID,
		task.SessionID,
		string(task.Status.State),
		string(payload),
		task.CreatedAt.UnixMilli(),
		task.UpdatedAt.UnixMilli(),
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return s.Get(ctx, params.ID)
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM a2a_tasks WHERE id = ?`, id)
	return scanPayload(row)
}

// Mutate 在事务内以 SELECT ... FOR UPDATE 锁定任务行后修改。
func (s *MySQLStore) Mutate(ctx context.Context, id string, fn MutateFunc) (result *Task, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := scanPayload(tx.QueryRowContext(ctx, `SELECT payload FROM a2a_tasks WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	next, err := applyMutation(current, fn, s.now())
	if err != nil {
		if stdErrors.Is(err, ErrTaskTerminal) {
			return current, err
		}
		return nil, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务失败")
	}

	const stmt = `UPDATE a2a_tasks SET state = ?, has_artifacts = ?, payload = ?, updated_at = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, stmt,
		string(next.Status.State),
		len(next.Artifacts) > 0,
		string(payload),
		next.UpdatedAt.UnixMilli(),
		id,
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
	}
	if err = tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交事务失败")
	}
	return next, nil
}

// List 返回最近的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT payload FROM a2a_tasks`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanPayload(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS submitted,
        COALESCE(SUM(CASE WHEN state IN (?, ?) THEN 1 ELSE 0 END), 0) AS working,
        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS completed,
        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0) AS canceled,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM a2a_tasks`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{
		string(StateSubmitted),
		string(StateWorking), string(StateInputRequired),
		string(StateCompleted),
		string(StateFailed),
		string(StateCanceled),
	}
	args = append(args, filterArgs...)

	var stats TaskStats
	var oldest, newest int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Submitted,
		&stats.Working,
		&stats.Completed,
		&stats.Failed,
		&stats.Canceled,
		&oldest,
		&newest,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	if stats.Total > 0 {
		stats.OldestUpdatedAt = time.UnixMilli(oldest).Unix()
		stats.NewestUpdatedAt = time.UnixMilli(newest).Unix()
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayload(row rowScanner) (*Task, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return decodeTask([]byte(payload))
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 6)

	if len(opts.States) > 0 {
		placeholders := make([]string, 0, len(opts.States))
		for _, state := range opts.States {
			placeholders = append(placeholders, "?")
			args = append(args, string(state))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
	}
	if !opts.UpdatedGTE.IsZero() {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE.UnixMilli())
	}
	if !opts.UpdatedLTE.IsZero() {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE.UnixMilli())
	}
	if opts.HasArtifacts != nil {
		conditions = append(conditions, "has_artifacts = ?")
		args = append(args, *opts.HasArtifacts)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR session_id LIKE ? OR payload LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
