package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultFile is read when no --config flag is given. A missing file is not
// an error.
const DefaultFile = "/etc/fileset.conf"

const envPrefix = "FILESET_"

// Config holds resolved settings: defaults, then the file, then FILESET_*
// environment variables.
type Config struct {
	Values map[string]string
}

// defaults are present in every loaded Config.
var defaults = map[string]string{
	"FILESET_PATCHELF":       "patchelf",
	"FILESET_CC":             "cc",
	"FILESET_SONAME_READER":  "patchelf",
	"FILESET_HASH_ALGORITHM": "sha256",
	"FILESET_S3_REGION":      "auto",
}

// Load reads an optional KEY=VALUE file at path. A missing file leaves the
// defaults in place; a line without "=" is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string, len(defaults))}
	for k, v := range defaults {
		cfg.Values[k] = v
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := parseInto(cfg.Values, string(data)); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	mergeEnvOverrides(cfg, os.Environ())
	return cfg, nil
}

// parseInto stores each "KEY = value" line of text in values. Blank lines
// and "#" comments are skipped and one level of quotes is stripped.
func parseInto(values map[string]string, text string) error {
	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("line %d: expected KEY=VALUE, got %q", n+1, line)
		}
		values[key] = unquote(strings.TrimSpace(val))
	}
	return nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// mergeEnvOverrides copies FILESET_* variables over file values. CC from
// the environment replaces only the built-in compiler default.
func mergeEnvOverrides(cfg *Config, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			cfg.Values[parts[0]] = parts[1]
		}
	}

	for _, env := range environ {
		if cc, ok := strings.CutPrefix(env, "CC="); ok && cc != "" {
			if cur, set := cfg.Values["FILESET_CC"]; !set || cur == defaults["FILESET_CC"] {
				cfg.Values["FILESET_CC"] = cc
			}
		}
	}
}

// Get returns the value for key or def when unset or empty.
func (c *Config) Get(key, def string) string {
	if v := c.Values[key]; v != "" {
		return v
	}
	return def
}

// Bool treats "1", "true" and "yes" as true.
func (c *Config) Bool(key string) bool {
	switch strings.ToLower(c.Values[key]) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// setting returns key, falling back to its built-in default when a caller
// constructed the Config by hand or set the key to "".
func (c *Config) setting(key string) string { return c.Get(key, defaults[key]) }

func (c *Config) Patchelf() string      { return c.setting("FILESET_PATCHELF") }
func (c *Config) CC() string            { return c.setting("FILESET_CC") }
func (c *Config) SonameReader() string  { return c.setting("FILESET_SONAME_READER") }
func (c *Config) HashAlgorithm() string { return c.setting("FILESET_HASH_ALGORITHM") }

// S3 holds remote artifact store settings.
type S3 struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3 returns the remote store settings. Bucket is required by callers;
// empty credentials fall back to the default AWS credential chain.
func (c *Config) S3() S3 {
	return S3{
		Bucket:          c.Values["FILESET_S3_BUCKET"],
		Endpoint:        c.Values["FILESET_S3_ENDPOINT"],
		Region:          c.setting("FILESET_S3_REGION"),
		AccessKeyID:     c.Values["FILESET_S3_ACCESS_KEY_ID"],
		SecretAccessKey: c.Values["FILESET_S3_SECRET_ACCESS_KEY"],
	}
}
