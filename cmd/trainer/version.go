package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientTrainer/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of trainer",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("trainer version %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
