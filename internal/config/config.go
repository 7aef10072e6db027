// Package config loads server and client settings from beacon.toml and BEACON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/and161185/safety-beacon/internal/errs"
	"github.com/and161185/safety-beacon/internal/limiter"
)

// EnvPrefix prefixes every environment override, e.g. BEACON_SERVER_DSN.
const EnvPrefix = "BEACON"

// Server holds backend settings.
type Server struct {
	HTTPAddr       string
	GRPCAddr       string
	DSN            string
	JWTKey         string
	AccessTTL      time.Duration
	TLSCert        string
	TLSKey         string
	HealthInterval time.Duration
	Limiter        limiter.Policy
}

// Client holds CLI settings.
type Client struct {
	ServerURL   string
	SessionPath string
	Timeout     time.Duration
	CACert      string
	Insecure    bool
	Geocoder    Geocoder
}

// Geocoder holds the Nominatim endpoint settings.
type Geocoder struct {
	BaseURL   string
	UserAgent string
	Retries   uint64
}

// Config is the full settings tree.
type Config struct {
	Server Server
	Client Client
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":8081")
	v.SetDefault("server.dsn", "")
	v.SetDefault("server.jwt_key", "")
	v.SetDefault("server.access_ttl", 15*time.Minute)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.health_interval", 10*time.Second)

	v.SetDefault("limiter.window", limiter.DefaultPolicy.Window)
	v.SetDefault("limiter.max_fails", limiter.DefaultPolicy.MaxFails)
	v.SetDefault("limiter.block_for", limiter.DefaultPolicy.BlockFor)

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.session_path", "")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("client.ca_cert", "")
	v.SetDefault("client.insecure", false)

	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "safety-beacon/dev")
	v.SetDefault("geocoder.retries", 3)
}

// Load reads configFile (or beacon.toml from the working directory and
// $XDG_CONFIG_HOME/safety-beacon when empty) and applies environment overrides.
// A missing default file is not an error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("beacon")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(configDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		Server: Server{
			HTTPAddr:       v.GetString("server.http_addr"),
			GRPCAddr:       v.GetString("server.grpc_addr"),
			DSN:            v.GetString("server.dsn"),
			JWTKey:         v.GetString("server.jwt_key"),
			AccessTTL:      v.GetDuration("server.access_ttl"),
			TLSCert:        v.GetString("server.tls_cert"),
			TLSKey:         v.GetString("server.tls_key"),
			HealthInterval: v.GetDuration("server.health_interval"),
			Limiter: limiter.Policy{
				Window:   v.GetDuration("limiter.window"),
				MaxFails: v.GetInt("limiter.max_fails"),
				BlockFor: v.GetDuration("limiter.block_for"),
			},
		},
		Client: Client{
			ServerURL:   v.GetString("client.server_url"),
			SessionPath: v.GetString("client.session_path"),
			Timeout:     v.GetDuration("client.timeout"),
			CACert:      v.GetString("client.ca_cert"),
			Insecure:    v.GetBool("client.insecure"),
			Geocoder: Geocoder{
				BaseURL:   v.GetString("geocoder.base_url"),
				UserAgent: v.GetString("geocoder.user_agent"),
				Retries:   v.GetUint64("geocoder.retries"),
			},
		},
	}, nil
}

// Validate reports missing or inconsistent server settings.
func (s Server) Validate() error {
	var problems []string
	if s.DSN == "" {
		problems = append(problems, "dsn is required")
	}
	if s.JWTKey == "" {
		problems = append(problems, "jwt_key is required")
	}
	if s.AccessTTL <= 0 {
		problems = append(problems, "access_ttl must be positive")
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		problems = append(problems, "tls_cert and tls_key go together")
	}
	if s.Limiter.MaxFails <= 0 || s.Limiter.Window <= 0 || s.Limiter.BlockFor <= 0 {
		problems = append(problems, "limiter window, max_fails and block_for must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("server config: %s: %w", strings.Join(problems, "; "), errs.ErrValidation)
	}
	return nil
}

func configDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "safety-beacon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "safety-beacon")
}
