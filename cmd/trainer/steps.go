package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTrainer/internal/app"
	"github.com/AaronLay10/SentientTrainer/internal/config"
)

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Load the step list the trainer would use",
	Long: `Fetches the training metadata exactly as "serve" does, with the same
retry window and fallback, and prints the resulting step list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		secrets, err := config.LoadSecrets()
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}

		a, err := app.Build(cfg, secrets, app.Options{ConfigDir: dir, Offline: true, Output: io.Discard})
		if err != nil {
			return err
		}
		res := a.LoadSteps(context.Background())

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res.Steps)
		}

		fmt.Printf("source: %s", res.Source)
		if res.Fallback && res.Err != nil {
			fmt.Printf(" (fallback: %v)", res.Err)
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tOBJECT\tINSTRUCTION")
		for _, s := range res.Steps {
			fmt.Fprintf(w, "%d\t%s\t%s\n", s.Index+1, s.TargetID, s.Instruction)
		}
		return w.Flush()
	},
}

func init() {
	stepsCmd.Flags().Bool("json", false, "Print the steps as JSON")
	rootCmd.AddCommand(stepsCmd)
}
