package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fedihype",
		Short: "Boost trending Mastodon posts with scoring, diversity rules, and quotas",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(boostCmd())
	root.AddCommand(profileCmd())
	root.AddCommand(stateCmd())

	return root
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the boost daemon with scheduler and status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "status server port (default: from config)")
	return cmd
}

func boostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boost",
		Short: "Run a single boost cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoost()
		},
	}
}

func profileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Update the bot account profile from the configured instance list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile()
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the persisted boost history counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState()
		},
	}
}
