// Package config loads and validates the configuration surface spec.md
// §6 requires: listener port, socket timeout, TLS material paths,
// validity window, concurrent-client limit, and store locations. It
// follows the teacher's pflag+viper convention: kebab-case flag/YAML
// keys bound onto a PascalCase settings struct via mapstructure tags.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

const (
	// DefaultCAPFPort is the CAPF listener port (§6).
	DefaultCAPFPort = 3804
	// DefaultTVSPort is the TVS listener port (§6).
	DefaultTVSPort = 2445

	defaultSocketTimeoutSeconds = 10
	defaultValidityDays         = 365

	minValidityDays = 1
	maxValidityDays = 3560
)

// CAPFSettings is the configuration surface for the CAPF daemon.
type CAPFSettings struct {
	BindAddress          string   `mapstructure:"bind-address"`
	BindPort             uint16   `mapstructure:"bind-port"`
	SocketTimeoutSeconds int      `mapstructure:"socket-timeout-seconds"`
	ServerTLSCert        string   `mapstructure:"server-tls-cert"`
	IssuerCert           string   `mapstructure:"issuer-cert"`
	VerifyCerts          []string `mapstructure:"verify-cert"`
	ValidityDays         int      `mapstructure:"validity-days"`
	MaxClients           int      `mapstructure:"max-clients"`
	StorePath            string   `mapstructure:"store-path"`
	CertificatesDir      string   `mapstructure:"certificates-dir"`
}

// Validate checks every CAPFSettings field against spec.md's boundary
// rules, returning an *apperr.ConfigError naming the first invalid
// option.
func (s *CAPFSettings) Validate() error {
	if s.BindPort == 0 {
		return apperr.NewConfigError("bind-port", fmt.Errorf("must be nonzero"))
	}

	if s.SocketTimeoutSeconds <= 0 {
		return apperr.NewConfigError("socket-timeout-seconds", fmt.Errorf("must be positive"))
	}

	if s.ServerTLSCert == "" {
		return apperr.NewConfigError("server-tls-cert", fmt.Errorf("required"))
	}

	if s.IssuerCert == "" {
		return apperr.NewConfigError("issuer-cert", fmt.Errorf("required"))
	}

	if s.ValidityDays < minValidityDays || s.ValidityDays > maxValidityDays {
		return apperr.NewConfigError("validity-days",
			fmt.Errorf("must be in [%d, %d], got %d", minValidityDays, maxValidityDays, s.ValidityDays))
	}

	if s.MaxClients < 0 {
		return apperr.NewConfigError("max-clients", fmt.Errorf("must be >= 0 (0 = unlimited)"))
	}

	if s.StorePath == "" {
		return apperr.NewConfigError("store-path", fmt.Errorf("required"))
	}

	return nil
}

// CertificatesDirOrDefault returns CertificatesDir, defaulting to the
// directory containing StorePath when unset, per spec.md §6.
func (s *CAPFSettings) CertificatesDirOrDefault() string {
	if s.CertificatesDir != "" {
		return s.CertificatesDir
	}

	return filepath.Dir(s.StorePath)
}

// TVSSettings is the configuration surface for the TVS daemon.
type TVSSettings struct {
	BindAddress          string `mapstructure:"bind-address"`
	BindPort             uint16 `mapstructure:"bind-port"`
	SocketTimeoutSeconds int    `mapstructure:"socket-timeout-seconds"`
	ServerTLSCert        string `mapstructure:"server-tls-cert"`
	MaxClients           int    `mapstructure:"max-clients"`
	StorePath            string `mapstructure:"store-path"`
}

// Validate checks every TVSSettings field.
func (s *TVSSettings) Validate() error {
	if s.BindPort == 0 {
		return apperr.NewConfigError("bind-port", fmt.Errorf("must be nonzero"))
	}

	if s.SocketTimeoutSeconds <= 0 {
		return apperr.NewConfigError("socket-timeout-seconds", fmt.Errorf("must be positive"))
	}

	if s.ServerTLSCert == "" {
		return apperr.NewConfigError("server-tls-cert", fmt.Errorf("required"))
	}

	if s.MaxClients < 0 {
		return apperr.NewConfigError("max-clients", fmt.Errorf("must be >= 0 (0 = unlimited)"))
	}

	if s.StorePath == "" {
		return apperr.NewConfigError("store-path", fmt.Errorf("required"))
	}

	return nil
}

func newViper(fs *pflag.FlagSet, configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, apperr.NewConfigError("flags", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			return nil, apperr.NewConfigError("config-file", err)
		}
	}

	return v, nil
}

// ParseCAPFFlags registers CAPF's flag surface on fs (unless fs already
// defines it), parses args, optionally layers a YAML config file on
// top, and returns validated settings.
func ParseCAPFFlags(fs *pflag.FlagSet, args []string) (*CAPFSettings, error) {
	var configPath string

	if fs.Lookup("config") == nil {
		fs.StringVar(&configPath, "config", "", "path to a YAML config file")
		fs.String("bind-address", "0.0.0.0", "address to bind the CAPF listener to")
		fs.Uint16("bind-port", DefaultCAPFPort, "CAPF listener port")
		fs.Int("socket-timeout-seconds", defaultSocketTimeoutSeconds, "per-socket read timeout, in seconds")
		fs.String("server-tls-cert", "", "path to the server TLS certificate+key PEM")
		fs.String("issuer-cert", "", "path to the issuer CA certificate+key PEM")
		fs.StringSlice("verify-cert", nil, "additional trust-anchor certificate paths, in order")
		fs.Int("validity-days", defaultValidityDays, "validity period (days) for issued certificates")
		fs.Int("max-clients", 0, "maximum concurrent client connections (0 = unlimited)")
		fs.String("store-path", "", "path to the CAPF SQLite store")
		fs.String("certificates-dir", "", "directory for issued certificate PEM files (defaults to store-path's directory)")
	}

	if err := fs.Parse(args); err != nil {
		return nil, apperr.NewConfigError("flags", err)
	}

	configPath, _ = fs.GetString("config")

	v, err := newViper(fs, configPath)
	if err != nil {
		return nil, err
	}

	settings := &CAPFSettings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, apperr.NewConfigError("unmarshal", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// ParseTVSFlags registers TVS's flag surface on fs (unless fs already
// defines it), parses args, optionally layers a YAML config file on
// top, and returns validated settings.
func ParseTVSFlags(fs *pflag.FlagSet, args []string) (*TVSSettings, error) {
	var configPath string

	if fs.Lookup("config") == nil {
		fs.StringVar(&configPath, "config", "", "path to a YAML config file")
		fs.String("bind-address", "0.0.0.0", "address to bind the TVS listener to")
		fs.Uint16("bind-port", DefaultTVSPort, "TVS listener port")
		fs.Int("socket-timeout-seconds", defaultSocketTimeoutSeconds, "per-socket read timeout, in seconds")
		fs.String("server-tls-cert", "", "path to the server TLS certificate+key PEM")
		fs.Int("max-clients", 0, "maximum concurrent client connections (0 = unlimited)")
		fs.String("store-path", "", "path to the TVS SQLite store")
	}

	if err := fs.Parse(args); err != nil {
		return nil, apperr.NewConfigError("flags", err)
	}

	configPath, _ = fs.GetString("config")

	v, err := newViper(fs, configPath)
	if err != nil {
		return nil, err
	}

	settings := &TVSSettings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, apperr.NewConfigError("unmarshal", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}
