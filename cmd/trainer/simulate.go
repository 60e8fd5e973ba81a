package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTrainer/internal/app"
	"github.com/AaronLay10/SentientTrainer/internal/config"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <object-id>...",
	Short: "Play a session offline with the given clicks",
	Long: `Runs one session without MQTT, Postgres or Redis. Each argument is a
click on that object; animations are advanced by --settle after every click.
Completion is reported to a simulated notifier.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Notifier.Simulate = true

		var out io.Writer = io.Discard
		if verbose, _ := cmd.Flags().GetBool("events"); verbose {
			out = os.Stderr
		}
		a, err := app.Build(cfg, config.Secrets{}, app.Options{ConfigDir: dir, Offline: true, Output: out})
		if err != nil {
			return err
		}

		settle, _ := cmd.Flags().GetDuration("settle")
		res, err := a.Simulate(context.Background(), args, settle)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		for _, c := range res.Clicks {
			fmt.Printf("%-24s %-10s %s\n", c.ObjectID, c.Outcome, c.Counter)
		}
		fmt.Printf("session %s: %s (run %d, %d rejection(s))\n",
			res.Progress.SessionID, res.Progress.Status, res.Progress.Run, res.Progress.Rejections)
		for _, n := range res.Notified {
			fmt.Printf("notified %s at %s\n", n.ProjectName, n.CompletedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().Duration("settle", time.Second, "Animation time simulated after each click")
	simulateCmd.Flags().Bool("json", false, "Print the result as JSON")
	simulateCmd.Flags().Bool("events", false, "Echo events to stderr")
	rootCmd.AddCommand(simulateCmd)
}
