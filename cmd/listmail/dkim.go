package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	"github.com/foxzi/listmail/internal/dkim"
	"github.com/foxzi/listmail/internal/dnscheck"
)

var (
	dkimDomain   string
	dkimSelector string
	dkimBits     int
	dkimKeyFile  string
	dkimOutDir   string
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management commands",
}

var dkimKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a DKIM key for the SMTP transport",
	Long: `Generate an RSA DKIM key, save it for transport.smtp.dkim.key_file and
print the TXT record to publish.`,
	RunE: runDKIMKeygen,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the DNS record for an existing key",
	RunE:  runDKIMShow,
}

var dkimCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check SPF, DKIM, DMARC and MX records of the sending domain",
	Long: `Check the DNS records of the sending domain. Without --domain the DKIM
settings of the SMTP transport are used and the published key is compared
with transport.smtp.dkim.key_file.`,
	RunE: runDKIMCheck,
}

func init() {
	dkimKeygenCmd.Flags().StringVar(&dkimDomain, "domain", "", "Signing domain (required)")
	dkimKeygenCmd.Flags().StringVar(&dkimSelector, "selector", "listmail", "DKIM selector")
	dkimKeygenCmd.Flags().IntVar(&dkimBits, "bits", dkim.DefaultKeyBits, "RSA key size")
	dkimKeygenCmd.Flags().StringVar(&dkimOutDir, "out", ".", "Output directory for key file")
	dkimKeygenCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Path to private key file (required)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "Signing domain (required)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "listmail", "DKIM selector")
	dkimShowCmd.MarkFlagRequired("key")
	dkimShowCmd.MarkFlagRequired("domain")

	dkimCheckCmd.Flags().StringVar(&dkimDomain, "domain", "", "Sending domain")
	dkimCheckCmd.Flags().StringVar(&dkimSelector, "selector", "listmail", "DKIM selector")
	dkimCheckCmd.Flags().StringVar(&dkimKeyFile, "key", "", "Private key the published record must match")

	dkimCmd.AddCommand(dkimKeygenCmd, dkimShowCmd, dkimCheckCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMKeygen(cmd *cobra.Command, args []string) error {
	kp, err := dkim.GenerateKey(dkimDomain, dkimSelector, dkimBits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.%s.key", dkimDomain, dkimSelector))
	if err := kp.SavePrivateKey(keyPath); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	fmt.Printf("DKIM key generated successfully\n\n")
	fmt.Printf("Private key saved to: %s\n\n", keyPath)
	printDKIMRecord(kp)

	fmt.Println("\nTransport configuration:")
	fmt.Println("  transport:")
	fmt.Println("    smtp:")
	fmt.Println("      dkim:")
	fmt.Println("        enabled: true")
	fmt.Printf("        domain: %q\n", dkimDomain)
	fmt.Printf("        selector: %q\n", dkimSelector)
	fmt.Printf("        key_file: %q\n", keyPath)
	return nil
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	privateKey, err := dkim.LoadPrivateKey(dkimKeyFile)
	if err != nil {
		return err
	}

	printDKIMRecord(&dkim.KeyPair{PrivateKey: privateKey, Domain: dkimDomain, Selector: dkimSelector})
	return nil
}

func printDKIMRecord(kp *dkim.KeyPair) {
	fmt.Printf("DNS Record:\n")
	fmt.Printf("  Name:  %s\n", kp.DNSName())
	fmt.Printf("  Type:  TXT\n")
	fmt.Printf("  Value: %s\n\n", kp.DNSRecord())
	fmt.Printf("Zone file:\n  %s\n", kp.ZoneLine())
}

func runDKIMCheck(cmd *cobra.Command, args []string) error {
	domain, selector, keyFile := dkimDomain, dkimSelector, dkimKeyFile
	if domain == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		d := cfg.Transport.SMTP.DKIM
		if !d.Enabled {
			return fmt.Errorf("--domain is required when transport.smtp.dkim is not enabled")
		}
		domain, selector, keyFile = d.Domain, d.Selector, d.KeyFile
	}

	var key *rsa.PublicKey
	if keyFile != "" {
		privateKey, err := dkim.LoadPrivateKey(keyFile)
		if err != nil {
			return err
		}
		key = &privateKey.PublicKey
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := dnscheck.NewChecker(nil).CheckSender(ctx, domain, selector, key)
	if err != nil {
		return err
	}

	fmt.Printf("DNS check for %s\n\n", report.Domain)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tDETAILS")
	for _, r := range report.Results {
		details := r.Message
		if details == "" {
			details = r.Value
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Type, r.Status, details)
	}
	w.Flush()

	if !report.Ready() {
		return fmt.Errorf("%s is not ready to send", report.Domain)
	}
	fmt.Printf("\n%s is ready to send\n", report.Domain)
	return nil
}
