package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/db"
	"github.com/foxzi/listmail/internal/models"
	"github.com/foxzi/listmail/internal/repository"
)

var (
	initEmail    string
	initName     string
	initPassword string
	initDataDir  string
	initListen   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare configuration, database and the first superuser",
	Long: `Prepare a fresh installation.

When the configuration file does not exist yet, a starter file is written
with a random session secret and the sandbox transport. The database schema
is then migrated and, if no superuser exists, one is created from --email.
Running init again on an initialized installation changes nothing.

Examples:
  listmail init -c /etc/listmail/config.yaml --email admin@example.com

  # Quick local setup
  listmail init -c ./config.yaml --data-dir ./data --email admin@example.com`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initEmail, "email", "", "Email of the first superuser")
	initCmd.Flags().StringVar(&initName, "name", "Administrator", "Name of the first superuser")
	initCmd.Flags().StringVar(&initPassword, "password", "", "Password of the first superuser (will prompt if not provided)")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/listmail", "Data directory for a generated configuration")
	initCmd.Flags().StringVar(&initListen, "listen", ":8088", "Listen address for a generated configuration")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := writeStarterConfig(configFile); err != nil {
			return err
		}
		fmt.Printf("Configuration saved to: %s\n", configFile)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	fmt.Printf("Database ready: %s\n", cfg.Database.Path)

	created, err := seedSuperuser(cfg, database, initEmail, initName, initPassword)
	if err != nil {
		return err
	}
	if created != nil {
		fmt.Printf("Superuser %s created\n", created.Email)
	} else {
		fmt.Println("Superuser already exists, nothing to do")
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  listmail serve -c %s\n", configFile)
	return nil
}

// seedSuperuser creates the first superuser unless one already exists. It
// returns nil when nothing was created.
func seedSuperuser(cfg *config.Config, database *db.DB, addr, name, password string) (*models.User, error) {
	users := repository.NewUserRepository(database.DB)

	n, err := users.CountByRole(models.RoleSuperuser)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	if addr == "" {
		return nil, fmt.Errorf("no superuser exists yet, --email is required")
	}

	return createUser(cfg, users, addr, name, password, models.RoleSuperuser)
}

func writeStarterConfig(path string) error {
	secret, err := generateSecret(32)
	if err != nil {
		return fmt.Errorf("failed to generate session secret: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// The file holds the session secret.
	if err := os.WriteFile(path, []byte(starterConfig(secret, initDataDir, initListen)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateSecret returns n random bytes hex encoded
func generateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func starterConfig(secret, dataDir, listen string) string {
	return fmt.Sprintf(`# listmail configuration
# Generated by: listmail init

server:
  listen_addr: "%s"
  # trusted_proxies: ["127.0.0.1"]

database:
  path: "%s/app.db"

auth:
  local_enabled: true
  registration_open: false
  session_secret: "%s"
  session_ttl: 24h
  min_password_length: 10
  oidc:
    enabled: false

transport:
  # smtp, sendry, resend, sandbox or log
  type: sandbox
  from: ""
  timeout: 30s
  sandbox:
    path: "%s/sandbox.db"
    fail_domains: []

metrics:
  enabled: true
  path: /metrics
  allowed_ips: ["127.0.0.1"]

logging:
  level: info
  format: json
`, listen, dataDir, secret, dataDir)
}
