package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTrainer/internal/app"
	"github.com/AaronLay10/SentientTrainer/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trainer",
	Long: `Starts the session loop, the MQTT scene link and the operator HTTP API.
Runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, dir, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Network.UIPort = port
		}

		secrets, err := config.LoadSecrets()
		if err != nil {
			return fmt.Errorf("load secrets: %w", err)
		}

		a, err := app.Build(cfg, secrets, app.Options{ConfigDir: dir})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides network.ui_port)")
	rootCmd.AddCommand(serveCmd)
}
