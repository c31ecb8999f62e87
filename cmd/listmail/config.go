package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/listmail/internal/config"
	listmailtls "github.com/foxzi/listmail/internal/tls"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	printTLS(cfg.Server.TLS)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Local auth: %v (registration open: %v)\n", cfg.Auth.LocalEnabled, cfg.Auth.RegistrationOpen)
	fmt.Printf("  OIDC auth: %v\n", cfg.Auth.OIDC.Enabled)
	fmt.Printf("  Transport: %s\n", cfg.Transport.Type)

	switch cfg.Transport.Type {
	case config.TransportSMTP:
		fmt.Printf("    - %s:%d (%s)\n", cfg.Transport.SMTP.Host, cfg.Transport.SMTP.Port, cfg.Transport.SMTP.Security)
		if cfg.Transport.SMTP.DKIM.Enabled {
			fmt.Printf("    - DKIM: %s._domainkey.%s\n", cfg.Transport.SMTP.DKIM.Selector, cfg.Transport.SMTP.DKIM.Domain)
		}
	case config.TransportSendry:
		fmt.Printf("    - %s\n", cfg.Transport.Sendry.BaseURL)
	case config.TransportSandbox:
		fmt.Printf("    - %s\n", cfg.Transport.Sandbox.Path)
	}
	if cfg.Transport.From != "" {
		fmt.Printf("  From: %s\n", cfg.Transport.From)
	}
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}

func printTLS(tls config.TLSConfig) {
	switch {
	case !tls.Enabled:
		fmt.Println("  TLS: disabled")
	case tls.ACME.Enabled:
		fmt.Printf("  TLS: ACME for %v (challenges on %s)\n", tls.ACME.Domains, tls.ACME.HTTPAddr)
		m := listmailtls.NewACMEManager(tls.ACME.Email, tls.ACME.Domains, tls.ACME.CacheDir)
		for _, c := range m.CachedCertificates(context.Background()) {
			fmt.Printf("    - %s: expires %s (%d days left)\n", c.Domain, c.NotAfter.Format("2006-01-02"), c.DaysLeft)
		}
	default:
		info, err := listmailtls.GetCertificateInfo(tls.CertFile)
		if err != nil {
			fmt.Printf("  TLS: %s (%v)\n", tls.CertFile, err)
			return
		}
		fmt.Printf("  TLS: %s, expires %s (%d days left)\n", info.Domain, info.NotAfter.Format("2006-01-02"), info.DaysLeft)
	}
}
