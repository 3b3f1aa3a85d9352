package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// DefaultServer is the alias every Servers mapping must contain.
const DefaultServer = "default"

var ErrNoDefaultServer = errors.New("servers must define a \"default\" alias")

// Config represents the configuration required by the file-sharing step library
type Config struct {
	Servers           Servers `envconfig:"SERVERS"`
	AdminUser         string  `envconfig:"ADMIN_USER"`
	AdminPassword     string  `envconfig:"ADMIN_PASSWORD"       json:"-"`
	TestPassword      string  `envconfig:"TEST_PASSWORD"        json:"-"`
	SharingAPIVersion string  `envconfig:"SHARING_API_VERSION"`
	UseLegacyDavPath  bool    `envconfig:"USE_LEGACY_DAV_PATH"`
	FixturesDir       string  `envconfig:"FIXTURES_DIR"`
	AwsRegion         string  `envconfig:"AWS_REGION"`
	LocalObjectStore  string  `envconfig:"LOCAL_OBJECT_STORE"`
	OtelEnabled       bool    `envconfig:"OTEL_ENABLED"`
}

// Servers maps a server alias (e.g. "default", "remote") to its base URL.
// It is decoded from a comma separated list of alias=url pairs.
type Servers map[string]string

// Decode implements envconfig.Decoder
func (s *Servers) Decode(value string) error {
	servers := Servers{}
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		alias, rawURL, ok := strings.Cut(pair, "=")
		alias, rawURL = strings.TrimSpace(alias), strings.TrimSpace(rawURL)
		if !ok || alias == "" {
			return fmt.Errorf("invalid server entry %q, expected alias=url", pair)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid url for server %q: %w", alias, err)
		}
		servers[alias] = rawURL
	}
	if _, ok := servers[DefaultServer]; !ok {
		return ErrNoDefaultServer
	}
	*s = servers
	return nil
}

// Aliases returns the configured server aliases in a stable order.
func (s Servers) Aliases() []string {
	aliases := make([]string, 0, len(s))
	for alias := range s {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

var cfg *Config

// Get retrieves the config from the environment for the step library
func Get() (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{
		Servers:           Servers{DefaultServer: "http://localhost:8080"},
		AdminUser:         "admin",
		AdminPassword:     "admin",
		TestPassword:      "123456",
		SharingAPIVersion: "1",
		UseLegacyDavPath:  false,
		FixturesDir:       "",
		AwsRegion:         "eu-west-2",
		LocalObjectStore:  "",
		OtelEnabled:       false,
	}

	return cfg, envconfig.Process("", cfg)
}
