// ABOUTME: init command for scout-desk: interactive config file creation
// ABOUTME: Writes a YAML config with a fresh JWT secret and prepares the data directory

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/scout-desk/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new config file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(bufio.NewReader(cmd.InOrStdin()))
	},
}

// initFile mirrors the subset of config.Config that init writes out.
type initFile struct {
	Server    config.ServerConfig   `yaml:"server"`
	Tailscale *initTailscale        `yaml:"tailscale,omitempty"`
	Database  config.DatabaseConfig `yaml:"database"`
	Auth      config.AuthConfig     `yaml:"auth"`
	Upstream  initUpstream          `yaml:"upstream"`
	Records   config.RecordsConfig  `yaml:"records"`
	Logging   config.LoggingConfig  `yaml:"logging"`
}

type initTailscale struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key,omitempty"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`
}

type initUpstream struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

func runInit(reader *bufio.Reader) error {
	fmt.Println("scout-desk configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultDBPath := filepath.Join(getDataPath(), "desk.db")

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var f initFile

	fmt.Println("\n--- Server Configuration ---")
	f.Server.HTTPAddr = prompt(reader, "HTTP address", "127.0.0.1:7420")

	fmt.Println("\n--- Upstream Configuration ---")
	f.Upstream.BaseURL = prompt(reader, "Research backend URL", "http://localhost:8081")
	f.Upstream.Timeout = prompt(reader, "Request timeout", "2m")

	fmt.Println("\n--- Database Configuration ---")
	f.Database.Path = prompt(reader, "SQLite database path", defaultDBPath)

	fmt.Println("\n--- Auth Configuration ---")
	secret, err := randomSecret()
	if err != nil {
		return err
	}
	f.Auth.JWTSecret = prompt(reader, "JWT secret", secret)
	f.Auth.Token = prompt(reader, "Analyst token (leave empty to set later)", "")
	f.Records.Enabled = yes(prompt(reader, "Serve the persistence endpoints from this process?", "yes"))

	fmt.Println("\n--- Tailscale Configuration ---")
	if yes(prompt(reader, "Enable Tailscale?", "no")) {
		f.Tailscale = &initTailscale{Enabled: true}
		f.Tailscale.Hostname = prompt(reader, "Tailscale hostname", "scout-desk")
		f.Tailscale.AuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		f.Tailscale.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
		f.Tailscale.HTTPS = yes(prompt(reader, "Serve HTTPS with tailnet certificates?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	f.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", "info")
	f.Logging.Format = prompt(reader, "Log format (text/json)", "text")

	body, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	content := append([]byte("# scout-desk configuration\n# Generated by scout-desk init\n\n"), body...)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the JWT secret.
	if err := os.WriteFile(outputFile, content, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(f.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Println("  scout-desk serve")

	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
