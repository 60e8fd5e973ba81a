package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTrainer/internal/config"
)

const defaultConfigPath = "trainer.yaml"

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "Sentient Trainer runs the LOTO robotic-arm safety procedure",
	Long: `Sentient Trainer validates the clicks of a 3D training scene against
the lockout-tagout sequence, drives the visual feedback and reports
completed sessions to the training platform.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigPath, "Path to trainer.yaml")
}

// loadConfig reads --config, then applies TRAINER_* overrides. A missing
// default file is not an error: the built-in LOTO scene is used.
func loadConfig(cmd *cobra.Command) (*config.TrainerConfig, string, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")

	cfg, err := config.LoadTrainerConfig(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cfg = config.Default()
	default:
		return nil, "", fmt.Errorf("load %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, filepath.Dir(path), nil
}
