package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcp-a2a/internal/task"
	"mcp-a2a/sdk/go/a2aclient"
)

type globalFlags struct {
	agentURL string
	token    string
	timeout  time.Duration
	raw      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "pdfagentctl",
		Short:         "Command-line client for the PDF to English A2A agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultURL := os.Getenv("PDFAGENT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:10002/"
	}
	root.PersistentFlags().StringVar(&g.agentURL, "agent", defaultURL, "agent base URL")
	root.PersistentFlags().StringVar(&g.token, "token", os.Getenv("PDFAGENT_TOKEN"), "bearer token sent with every request")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", a2aclient.DefaultHTTPTimeout, "request timeout")
	root.PersistentFlags().BoolVar(&g.raw, "json", false, "print the full JSON task instead of the text result")

	root.AddCommand(
		newSendCmd(g),
		newGetCmd(g),
		newCancelCmd(g),
		newCardCmd(g),
		newListCmd(g),
		newEventsCmd(),
	)
	return root
}

func (g *globalFlags) client() (*a2aclient.Client, error) {
	client, err := a2aclient.NewClient(g.agentURL, nil)
	if err != nil {
		return nil, err
	}
	client.SetToken(g.token)
	return client, nil
}

func (g *globalFlags) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if g.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newSendCmd(g *globalFlags) *cobra.Command {
	var taskID, sessionID string
	cmd := &cobra.Command{
		Use:   "send <pdf-path-or-text>",
		Short: "Send a task and wait for its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			result, err := client.SendTask(ctx, a2aclient.TaskSendParams{
				ID:        taskID,
				SessionID: sessionID,
				Message:   task.Message{Role: task.RoleUser, Parts: []task.Part{task.TextPart(args[0])}},
			})
			if err != nil {
				return err
			}
			return printTask(cmd.OutOrStdout(), result, g.raw)
		},
	}
	cmd.Flags().StringVar(&taskID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	return cmd
}

func newGetCmd(g *globalFlags) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			var historyLength *int
			if cmd.Flags().Changed("history") {
				historyLength = &history
			}
			result, err := client.GetTask(ctx, args[0], historyLength)
			if err != nil {
				return err
			}
			return printTask(cmd.OutOrStdout(), result, g.raw)
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "number of history messages to include")
	return cmd
}

func newCancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			result, err := client.CancelTask(ctx, args[0])
			if err != nil {
				return err
			}
			return printTask(cmd.OutOrStdout(), result, true)
		},
	}
}

func newCardCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "card",
		Short: "Print the agent card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			card, err := client.AgentCard(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), card)
		},
	}
}

func newListCmd(g *globalFlags) *cobra.Command {
	var state, order string
	var limit int
	var stats bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks known to the agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx, cancel := g.context(cmd)
			defer cancel()
			query := url.Values{}
			if state != "" {
				query.Set("state", state)
			}
			if order != "" {
				query.Set("order", order)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if stats {
				summary, err := client.Stats(ctx, query)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			}
			tasks, err := client.ListTasks(ctx, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range tasks {
				fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Status.State, t.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "comma separated states")
	cmd.Flags().StringVar(&order, "order", "", "asc or desc")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")
	cmd.Flags().BoolVar(&stats, "stats", false, "print aggregated counts instead of tasks")
	return cmd
}

// printTask 默认只输出结果文本；失败任务返回错误以便脚本判断。
func printTask(w io.Writer, t *task.Task, raw bool) error {
	if raw {
		return printJSON(w, t)
	}
	switch t.Status.State {
	case task.StateCompleted:
		for _, artifact := range t.Artifacts {
			for _, part := range artifact.Parts {
				fmt.Fprintln(w, part.Text)
			}
		}
		return nil
	case task.StateFailed:
		reason := ""
		if t.Status.Message != nil {
			reason = t.Status.Message.Text()
		}
		return fmt.Errorf("task %s failed: %s", t.ID, reason)
	default:
		fmt.Fprintf(w, "task %s is %s\n", t.ID, t.Status.State)
		return nil
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
