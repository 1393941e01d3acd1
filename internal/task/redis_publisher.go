package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisherConfig 描述 Redis 事件列表的连接参数。
type RedisPublisherConfig struct {
	Address   string
	Password  string
	DB        int
	List      string
	BlockWait time.Duration
}

// RedisPublisher 使用 Redis list 投递任务事件：LPUSH 写入，BRPOP 消费。
type RedisPublisher struct {
	client *redis.Client
	list   string
	wait   time.Duration
}

// NewRedisPublisher 创建 Redis 事件投递器。
func NewRedisPublisher(cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisPublisherWithClient(client, cfg.List, cfg.BlockWait), nil
}

// NewRedisPublisherWithClient 使用已有客户端创建投递器。
func NewRedisPublisherWithClient(client *redis.Client, list string, wait time.Duration) *RedisPublisher {
	if list == "" {
		list = "pdfagent:events"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisPublisher{client: client, list: list, wait: wait}
}

// Publish 将事件以 JSON 形式写入列表头部。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	if err := p.client.LPush(ctx, p.list, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从列表尾部按发布顺序读取事件。
func (p *RedisPublisher) Consume(ctx context.Context, handler EventHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		values, err := p.client.BRPop(ctx, p.wait, p.list).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("Redis 读取事件失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		event, err := decodeEvent([]byte(values[1]))
		if err != nil {
			// 无法解析的事件直接丢弃。
			continue
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

var (
	_ Publisher  = (*RedisPublisher)(nil)
	_ Subscriber = (*RedisPublisher)(nil)
)
