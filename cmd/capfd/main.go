// Command capfd runs the CAPF (Certificate Authority Proxy Function)
// phone-enrollment daemon (spec.md §4).
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/usecallmanagernz/daemons/internal/authverify"
	"github.com/usecallmanagernz/daemons/internal/capf"
	"github.com/usecallmanagernz/daemons/internal/config"
	"github.com/usecallmanagernz/daemons/internal/dbutil"
	"github.com/usecallmanagernz/daemons/internal/issuer"
	"github.com/usecallmanagernz/daemons/internal/listener"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "capfd",
		Short: "CAPF daemon",
		Long: `capfd - Certificate Authority Proxy Function daemon.

Enrolls IP phones with locally-significant certificates (LSC) over a
TLS listener, speaking CAPF's framed TLV wire protocol.`,
	}

	rootCmd.AddCommand(newServeCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CAPF listener until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Flags(), args)
		},
	}

	// Flags are registered on the command's own FlagSet (rather than
	// left to config.ParseCAPFFlags to register on a bare FlagSet) so
	// --help lists them.
	registerCAPFFlags(cmd.Flags())

	return cmd
}

func registerCAPFFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("bind-address", "0.0.0.0", "address to bind the CAPF listener to")
	fs.Uint16("bind-port", config.DefaultCAPFPort, "CAPF listener port")
	fs.Int("socket-timeout-seconds", 10, "per-socket read timeout, in seconds")
	fs.String("server-tls-cert", "", "path to the server TLS certificate+key PEM")
	fs.String("issuer-cert", "", "path to the issuer CA certificate+key PEM")
	fs.StringSlice("verify-cert", nil, "additional trust-anchor certificate paths, in order")
	fs.Int("validity-days", 365, "validity period (days) for issued certificates")
	fs.Int("max-clients", 0, "maximum concurrent client connections (0 = unlimited)")
	fs.String("store-path", "", "path to the CAPF SQLite store")
	fs.String("certificates-dir", "", "directory for issued certificate PEM files (defaults to store-path's directory)")
}

func runServe(fs *pflag.FlagSet, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	settings, err := config.ParseCAPFFlags(fs, args)
	if err != nil {
		return err
	}

	issuerMaterial, err := issuer.LoadMaterial(settings.IssuerCert)
	if err != nil {
		return err
	}

	iss, err := issuer.New(issuerMaterial, settings.ValidityDays)
	if err != nil {
		return err
	}

	verifier, err := newCAPFVerifier(issuerMaterial, settings.VerifyCerts)
	if err != nil {
		return err
	}

	serverTLSMaterial, err := issuer.LoadMaterial(settings.ServerTLSCert)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{serverTLSMaterial.Certificate.Raw},
			PrivateKey:  serverTLSMaterial.PrivateKey,
		}},
		ClientAuth: tls.NoClientCert,
	}

	db, err := dbutil.Open(settings.StorePath)
	if err != nil {
		return err
	}

	store := capf.NewStore(db)
	certificatesDir := settings.CertificatesDirOrDefault()

	handler := capf.NewHandler(store, iss, verifier, certificatesDir, logger)

	srv := listener.New(listener.Config{
		BindAddress:   settings.BindAddress,
		BindPort:      settings.BindPort,
		SocketTimeout: time.Duration(settings.SocketTimeoutSeconds) * time.Second,
		MaxClients:    settings.MaxClients,
		TLSConfig:     tlsConfig,
		Logger:        logger,
	}, handler)

	logger.Info("capfd starting", "bind-address", settings.BindAddress, "bind-port", settings.BindPort)

	return srv.Serve(context.Background())
}

// newCAPFVerifier builds the phone-authentication verifier's trust
// anchor set: the issuer's own certificate plus every configured
// additional verify-cert path, in order (spec.md §6).
func newCAPFVerifier(issuerMaterial *issuer.Material, verifyCertPaths []string) (*authverify.Verifier, error) {
	anchors := []*x509.Certificate{issuerMaterial.Certificate}

	for _, path := range verifyCertPaths {
		certs, err := issuer.LoadCertificates(path)
		if err != nil {
			return nil, err
		}

		anchors = append(anchors, certs...)
	}

	return authverify.NewVerifier(anchors), nil
}
