package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/prassanna-ravishankar/torale/internal/agent"
	"github.com/prassanna-ravishankar/torale/internal/config"
	"github.com/prassanna-ravishankar/torale/internal/task"
)

func checkCmd() *cobra.Command {
	var (
		query     string
		condition string
		timeout   time.Duration
	)

	command := &cobra.Command{
		Use:   "check",
		Short: "Run a one-off check without creating a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if timeout == 0 {
				timeout = cfg.Agent.Timeout
			}

			gateway, err := agent.NewHTTPGateway(agent.Config{
				BaseURL: cfg.Agent.BaseURL,
				Token:   cfg.Agent.Token,
				Timeout: timeout,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := gateway.Check(ctx, task.CheckRequest{
				Query:     query,
				Condition: condition,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	command.Flags().StringVarP(&query, "query", "q", "", "Search query (10-500 chars)")
	command.Flags().StringVarP(&condition, "condition", "c", "", "Condition to evaluate (10-500 chars)")
	command.Flags().DurationVar(&timeout, "timeout", 0, "Agent call timeout (default from config)")
	_ = command.MarkFlagRequired("query")
	_ = command.MarkFlagRequired("condition")

	return command
}
