package task

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "mcp-a2a/internal/errors"
)

// RedisStoreConfig 描述 Redis 任务存储的连接参数。
type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore 将任务以 JSON 存放在 {prefix}:task:{id}，并用有序集合 {prefix}:tasks
// 按更新时间索引。并发修改依靠 WATCH/MULTI 乐观锁串行化。
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
	now        func() time.Time
}

// NewRedisStore 创建 Redis 存储实例。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewRedisStoreWithClient(client, cfg.Prefix), nil
}

// NewRedisStoreWithClient 使用已有客户端创建存储。
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "pdfagent"
	}
	return &RedisStore{
		client:     client,
		prefix:     prefix,
		maxRetries: 16,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) taskKey(id string) string { return fmt.Sprintf("%s:task:%s", s.prefix, id) }
func (s *RedisStore) indexKey() string         { return s.prefix + ":tasks" }

// Upsert 通过 SETNX 保证同一 ID 只创建一次。
func (s *RedisStore) Upsert(ctx context.Context, params UpsertParams) (*Task, error) {
	if err := validateUpsert(params); err != nil {
		return nil, err
	}
	task := newTask(params, s.now())
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务失败")
	}
	created, err := s.client.SetNX(ctx, s.taskKey(task.ID), payload, 0).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	if !created {
		return s.Get(ctx, params.ID)
	}
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(task.UpdatedAt.UnixMilli()),
		Member: task.ID,
	}).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务索引失败")
	}
	return task, nil
}

// Get 查询指定任务。
func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	raw, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return decodeTask(raw)
}

// Mutate 使用 WATCH 监视任务键，事务冲突时重试。
func (s *RedisStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*Task, error) {
	key := s.taskKey(id)
	var (
		result *Task
		mutErr error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if stdErrors.Is(err, redis.Nil) {
				return ErrTaskNotFound
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
		}
		current, err := decodeTask(raw)
		if err != nil {
			return err
		}
		next, err := applyMutation(current, fn, s.now())
		if err != nil {
			if stdErrors.Is(err, ErrTaskTerminal) {
				result = current
			}
			mutErr = err
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务失败")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(next.UpdatedAt.UnixMilli()), Member: id})
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		result, mutErr = nil, nil
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if mutErr != nil {
			return result, mutErr
		}
		if stdErrors.Is(err, redis.TxFailedErr) {
			continue
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
	}
	return nil, xerrors.New(xerrors.CodeStorageFailure, "任务并发修改冲突，重试次数耗尽", xerrors.WithMetadata("task_id", id))
}

// List 按索引顺序读取任务并在客户端过滤。
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()
	all, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]*Task, 0, len(all))
	for _, t := range all {
		if opts.matches(t) {
			tasks = append(tasks, t)
		}
	}
	return sortAndPage(tasks, opts), nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *RedisStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()
	all, err := s.loadAll(ctx)
	if err != nil {
		return TaskStats{}, err
	}
	var stats TaskStats
	for _, t := range all {
		if opts.matches(t) {
			stats.add(t)
		}
	}
	return stats, nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) loadAll(ctx context.Context) ([]*Task, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务索引失败")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "批量读取任务失败")
	}
	tasks := make([]*Task, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		t, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func decodeTask(raw []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
	}
	return &task, nil
}

var _ Store = (*RedisStore)(nil)
