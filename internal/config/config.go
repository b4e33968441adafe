// Package config provides runtime configuration values for the gateway.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration knobs for the HTTP server and the upstream
// InvenTree connection.
type Config struct {
	HTTPAddr        string
	UpstreamURL     string
	Token           string
	SiteDomain      string
	UpstreamTimeout time.Duration
	ShutdownTimeout time.Duration
}

// fileConfig mirrors the optional YAML config file. Environment variables
// override any value set here.
type fileConfig struct {
	HTTPAddr         string `yaml:"http_addr"`
	UpstreamURL      string `yaml:"upstream_url"`
	Token            string `yaml:"token"`
	SiteDomain       string `yaml:"site_domain"`
	UpstreamTimeoutS int    `yaml:"upstream_timeout_s"`
	ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Load collects configuration from the optional YAML file named by
// GATEWAY_CONFIG, then from environment variables. Environment wins.
func Load() (Config, error) {
	var fc fileConfig
	if path := os.Getenv("GATEWAY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
		}
	}

	upstreamTimeout := fc.UpstreamTimeoutS
	if upstreamTimeout == 0 {
		upstreamTimeout = 15
	}
	shutdownTimeout := fc.ShutdownTimeoutS
	if shutdownTimeout == 0 {
		shutdownTimeout = 10
	}

	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", orDefault(fc.HTTPAddr, ":8001")),
		UpstreamURL:     getenv("INVENTREE_URL", fc.UpstreamURL),
		Token:           getenv("INVENTREE_TOKEN", fc.Token),
		SiteDomain:      getenv("SITE_DOMAIN", fc.SiteDomain),
		UpstreamTimeout: time.Duration(atoienv("UPSTREAM_TIMEOUT_S", upstreamTimeout)) * time.Second,
		ShutdownTimeout: time.Duration(atoienv("SHUTDOWN_TIMEOUT", shutdownTimeout)) * time.Second,
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Validate reports an error when a required value is missing. The process
// must not start with a placeholder upstream identity.
func (c Config) Validate() error {
	var missing []string
	if c.UpstreamURL == "" {
		missing = append(missing, "INVENTREE_URL")
	}
	if c.Token == "" {
		missing = append(missing, "INVENTREE_TOKEN")
	}
	if c.SiteDomain == "" {
		missing = append(missing, "SITE_DOMAIN")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}
