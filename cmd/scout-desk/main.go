// ABOUTME: Entry point for the scout-desk research workspace server
// ABOUTME: Cobra root command, config path resolution and .env loading

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set by goreleaser at build time.
var version = "dev"

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "scout-desk",
	Short: "Prospect research workspace",
	Long: `scout-desk serves the prospect research workspace: session history,
the research assistant conversation, prospect search and research reports.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal; the environment may already be set.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default $XDG_CONFIG_HOME/scout/desk.yaml)")
	rootCmd.Version = version

	rootCmd.AddCommand(serveCmd, initCmd, healthCmd, tokenCmd)
}

// getConfigPath returns the path to the workspace config file.
// Priority: --config flag > SCOUT_CONFIG env var > XDG_CONFIG_HOME/scout/desk.yaml > ~/.config/scout/desk.yaml
func getConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	if envPath := os.Getenv("SCOUT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "desk.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "scout", "desk.yaml")
}

// getDataPath returns the path to the workspace data directory.
// Priority: XDG_DATA_HOME/scout > ~/.local/share/scout
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "scout")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
