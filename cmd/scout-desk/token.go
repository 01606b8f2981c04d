// ABOUTME: token command for scout-desk: mints an analyst bearer token
// ABOUTME: Signs with auth.jwt_secret so a local deployment can run without an identity provider

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/config"
)

var (
	tokenOwner string
	tokenTTL   time.Duration
	tokenSave  bool
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an analyst",
	Long: `Mint a bearer token signed with auth.jwt_secret.

Without --owner a new random analyst id is generated. With --save the token
is written next to the config file, where it can be referenced from auth.token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToken()
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenOwner, "owner", "", "analyst id to put in the sub claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenSave, "save", false, "write the token to a file next to the config")
}

func runToken() error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt_secret not configured in %s (required to sign tokens)", configPath)
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	owner := strings.TrimSpace(tokenOwner)
	if owner == "" {
		owner = uuid.New().String()
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(owner, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	if !tokenSave {
		fmt.Println(token)
		return nil
	}

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Saved token: %s\n", tokenPath)
	fmt.Printf("  Owner:   %s\n", owner)
	fmt.Printf("  Expires: %s\n", time.Now().Add(tokenTTL).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	fmt.Println("  Reference it from the config:")
	fmt.Println(`    auth:`)
	fmt.Println(`      token: "${SCOUT_TOKEN}"`)
	return nil
}
