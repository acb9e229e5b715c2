package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Optional .env for local development; the environment wins
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "torale",
		Short: "Monitoring task execution engine",
		Long:  "torale runs recurring monitoring tasks: a search query plus a natural-language condition, checked on a cron schedule against an external reasoning agent.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	root.AddCommand(engineCmd())
	root.AddCommand(checkCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
