package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp-a2a/internal/task"
)

// newEventsCmd 订阅守护进程投递的任务事件，用于排查与联调。
func newEventsCmd() *cobra.Command {
	var (
		driver     string
		redisAddr  string
		redisList  string
		rabbitURL  string
		rabbitName string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow task state events from redis or rabbitmq",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			subscriber, err := newSubscriber(driver, redisAddr, redisList, rabbitURL, rabbitName)
			if err != nil {
				return err
			}
			defer subscriber.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			out := cmd.OutOrStdout()
			err = subscriber.Consume(ctx, func(_ context.Context, event task.Event) error {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
					event.OccurredAt.Format(time.RFC3339), event.TaskID, event.State, event.Message)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "redis", "event source: redis or rabbitmq")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "127.0.0.1:6379", "redis address")
	cmd.Flags().StringVar(&redisList, "redis-list", "pdfagent:events", "redis list key")
	cmd.Flags().StringVar(&rabbitURL, "rabbitmq-url", os.Getenv("PDFAGENT_RABBITMQ_URL"), "rabbitmq url")
	cmd.Flags().StringVar(&rabbitName, "rabbitmq-queue", "pdfagent.task.events", "rabbitmq queue")
	return cmd
}

func newSubscriber(driver, redisAddr, redisList, rabbitURL, rabbitQueue string) (task.Subscriber, error) {
	switch driver {
	case "redis":
		return task.NewRedisPublisher(task.RedisPublisherConfig{
			Address:   redisAddr,
			List:      redisList,
			BlockWait: 2 * time.Second,
		})
	case "rabbitmq":
		if rabbitURL == "" {
			return nil, errors.New("--rabbitmq-url is required")
		}
		return task.NewRabbitMQPublisher(task.RabbitMQConfig{
			URL:      rabbitURL,
			Queue:    rabbitQueue,
			Prefetch: 16,
			Durable:  true,
		})
	default:
		return nil, fmt.Errorf("unknown event driver %q", driver)
	}
}
