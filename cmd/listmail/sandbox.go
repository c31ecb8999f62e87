package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/sandbox"
	"github.com/foxzi/listmail/internal/web/views"
)

var (
	sandboxListTo     string
	sandboxListDomain string
	sandboxListLimit  int
	sandboxListFailed bool
	sandboxShowRaw    bool
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured by the sandbox transport",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured message",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxListTo, "to", "", "Filter by recipient address")
	sandboxListCmd.Flags().StringVar(&sandboxListDomain, "domain", "", "Filter by recipient domain")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")
	sandboxListCmd.Flags().BoolVar(&sandboxListFailed, "failed", false, "Only list simulated delivery failures")

	sandboxShowCmd.Flags().BoolVar(&sandboxShowRaw, "raw", false, "Print only the raw RFC 5322 message")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	return sandbox.Open(cfg.Transport.Sandbox.Path)
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	filter := sandbox.ListFilter{
		To:     sandboxListTo,
		Domain: sandboxListDomain,
		Limit:  sandboxListLimit,
	}
	if sandboxListFailed {
		failed := true
		filter.Failed = &failed
	}

	messages, err := storage.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTO\tSUBJECT\tRESULT\tCAPTURED")
	fmt.Fprintln(w, "--\t--\t-------\t------\t--------")

	for _, msg := range messages {
		result := "captured"
		if msg.SimulatedErr != "" {
			result = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID,
			views.Truncate(msg.To, 30),
			views.Truncate(msg.Subject, 40),
			result,
			msg.CapturedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Printf("\nShowing %d messages\n", len(messages))
	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	msg, err := storage.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("message %s not found", args[0])
	}

	if sandboxShowRaw {
		_, err := os.Stdout.Write(msg.Data)
		return err
	}

	fmt.Printf("ID:       %s\n", msg.ID)
	fmt.Printf("From:     %s\n", msg.From)
	fmt.Printf("To:       %s\n", msg.To)
	fmt.Printf("Subject:  %s\n", msg.Subject)
	fmt.Printf("Captured: %s\n", msg.CapturedAt.Local().Format("2006-01-02 15:04:05"))
	if msg.SimulatedErr != "" {
		fmt.Printf("Error:    %s\n", msg.SimulatedErr)
	}
	fmt.Printf("Size:     %d bytes\n\n", len(msg.Data))
	fmt.Println(string(msg.Data))
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Total messages: %d\n", stats.Total)
	fmt.Printf("Simulated failures: %d\n", stats.Failed)
	fmt.Printf("Total size: %d bytes\n", stats.TotalSize)
	if stats.Total > 0 {
		fmt.Printf("Oldest: %s\n", stats.OldestAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Newest: %s\n", stats.NewestAt.Local().Format("2006-01-02 15:04:05"))
	}

	if len(stats.ByDomain) > 0 {
		domains := make([]string, 0, len(stats.ByDomain))
		for d := range stats.ByDomain {
			domains = append(domains, d)
		}
		sort.Strings(domains)

		fmt.Println("\nBy domain:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, d := range domains {
			fmt.Fprintf(w, "  %s\t%d\n", d, stats.ByDomain[d])
		}
		w.Flush()
	}
	return nil
}
