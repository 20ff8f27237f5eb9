// Command tvsd runs the TVS (Trust Verification Service)
// certificate-lookup daemon (spec.md §4.5).
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/usecallmanagernz/daemons/internal/config"
	"github.com/usecallmanagernz/daemons/internal/dbutil"
	"github.com/usecallmanagernz/daemons/internal/issuer"
	"github.com/usecallmanagernz/daemons/internal/listener"
	"github.com/usecallmanagernz/daemons/internal/tvs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tvsd",
		Short: "TVS daemon",
		Long: `tvsd - Trust Verification Service daemon.

Answers single-shot certificate-trust lookups over a TLS listener,
speaking TVS's framed TLV wire protocol.`,
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
		Short: "Run the TVS listener until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Flags(), args)
		},
	}

	registerTVSFlags(cmd.Flags())

	return cmd
}

func registerTVSFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("bind-address", "0.0.0.0", "address to bind the TVS listener to")
	fs.Uint16("bind-port", config.DefaultTVSPort, "TVS listener port")
	fs.Int("socket-timeout-seconds", 10, "per-socket read timeout, in seconds")
	fs.String("server-tls-cert", "", "path to the server TLS certificate+key PEM")
	fs.Int("max-clients", 0, "maximum concurrent client connections (0 = unlimited)")
	fs.String("store-path", "", "path to the TVS SQLite store")
}

func runServe(fs *pflag.FlagSet, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	settings, err := config.ParseTVSFlags(fs, args)
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

	store := tvs.NewStore(db)
	handler := tvs.NewHandler(store, logger)

	srv := listener.New(listener.Config{
		BindAddress:   settings.BindAddress,
		BindPort:      settings.BindPort,
		SocketTimeout: time.Duration(settings.SocketTimeoutSeconds) * time.Second,
		MaxClients:    settings.MaxClients,
		TLSConfig:     tlsConfig,
		Logger:        logger,
	}, handler)

	logger.Info("tvsd starting", "bind-address", settings.BindAddress, "bind-port", settings.BindPort)

	return srv.Serve(context.Background())
}
