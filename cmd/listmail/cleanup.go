package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/repository"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old data (expired sessions, attempts, audit log)",
	Long: `Remove expired sessions, delivery attempts of finished mailings older than
--attempts-days and audit log entries older than --audit-days. Attempts of
mailings that have not finished are never touched.

Attempts are otherwise never changed or removed. Deleting them permanently
drops the delivery history of those mailings, including the per-recipient
results shown on the mailing page. Use --attempts-days 0 to keep it.`,
	RunE: runCleanup,
}

var (
	cleanupAttemptsDays int
	cleanupAuditDays    int
	cleanupDryRun       bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupAttemptsDays, "attempts-days", 90, "Delete delivery history (attempts) of finished mailings older than N days (0 keeps all)")
	cleanupCmd.Flags().IntVar(&cleanupAuditDays, "audit-days", 180, "Delete audit log entries older than N days (0 keeps all)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")

	rootCmd.AddCommand(cleanupCmd)
}

// cleanupStep counts and deletes one kind of stale rows
type cleanupStep struct {
	label  string
	count  func() (int, error)
	delete func() (int64, error)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	sessions := repository.NewSessionRepository(database.DB)
	steps := []cleanupStep{{
		label:  "Expired sessions",
		count:  sessions.CountExpired,
		delete: sessions.DeleteExpired,
	}}

	if cleanupAttemptsDays > 0 {
		attempts := repository.NewAttemptRepository(database.DB)
		cutoff := time.Now().UTC().AddDate(0, 0, -cleanupAttemptsDays)
		steps = append(steps, cleanupStep{
			label:  fmt.Sprintf("Attempts of finished mailings older than %d days", cleanupAttemptsDays),
			count:  func() (int, error) { return attempts.CountFinishedBefore(cutoff) },
			delete: func() (int64, error) { return attempts.DeleteFinishedBefore(cutoff) },
		})
	}

	if cleanupAuditDays > 0 {
		audit := repository.NewAuditRepository(database.DB)
		cutoff := time.Now().UTC().AddDate(0, 0, -cleanupAuditDays)
		steps = append(steps, cleanupStep{
			label:  fmt.Sprintf("Audit log entries older than %d days", cleanupAuditDays),
			count:  func() (int, error) { return audit.CountBefore(cutoff) },
			delete: func() (int64, error) { return audit.DeleteBefore(cutoff) },
		})
	}

	for _, s := range steps {
		if err := s.run(cleanupDryRun); err != nil {
			return err
		}
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}

func (s cleanupStep) run(dryRun bool) error {
	count, err := s.count()
	if err != nil {
		return fmt.Errorf("failed to count %s: %w", s.label, err)
	}
	fmt.Printf("%s: %d\n", s.label, count)

	if dryRun || count == 0 {
		return nil
	}

	deleted, err := s.delete()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", s.label, err)
	}
	fmt.Printf("  Deleted: %d\n", deleted)
	return nil
}
