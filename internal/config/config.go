// Package config loads sfexplain settings from config.yaml, the environment
// and command-line flags, and keeps the OpenAI API key in the OS keyring.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kernel/sfexplain/internal/explain"
	"github.com/kernel/sfexplain/internal/llm"
	"github.com/kernel/sfexplain/internal/obfuscate"
	"github.com/kernel/sfexplain/internal/salesforce"
)

const (
	// FileName is the config file inside the config directory.
	FileName = "config.yaml"

	// DirEnv overrides the config directory.
	DirEnv = "SFEXPLAIN_CONFIG_DIR"

	DefaultTimeout   = 60 * time.Second
	DefaultServeAddr = "127.0.0.1:8787"
)

// Session cache backends.
const (
	CacheMemory  = "memory"
	CacheKeyring = "keyring"
)

// Config holds user settings.
type Config struct {
	Model string `yaml:"model"`

	// ObfuscateFields is the master switch for field name obfuscation. The
	// protect_* settings only apply while it is on.
	ObfuscateFields        bool `yaml:"obfuscate_fields"`
	ProtectCustomFields    bool `yaml:"protect_custom_fields"`
	ProtectStandardFields  bool `yaml:"protect_standard_fields"`
	ProtectSensitiveFields bool `yaml:"protect_sensitive_fields"`

	APIVersion    string `yaml:"api_version"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// CookieFile is a Netscape cookies.txt export to read the sid cookie from.
	CookieFile string `yaml:"cookie_file"`
	// FirefoxProfile is a Firefox profile directory holding cookies.sqlite.
	FirefoxProfile string `yaml:"firefox_profile"`
	// SessionCache is "memory" or "keyring".
	SessionCache string `yaml:"session_cache"`

	Timeout   time.Duration `yaml:"timeout"`
	ServeAddr string        `yaml:"serve_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Model:                  llm.DefaultModel,
		ObfuscateFields:        true,
		ProtectCustomFields:    true,
		ProtectStandardFields:  true,
		ProtectSensitiveFields: true,
		APIVersion:             salesforce.DefaultAPIVersion,
		OpenAIBaseURL:          llm.DefaultBaseURL,
		SessionCache:           CacheKeyring,
		Timeout:                DefaultTimeout,
		ServeAddr:              DefaultServeAddr,
	}
}

// Dir returns the config directory: $SFEXPLAIN_CONFIG_DIR or the user config
// directory plus "sfexplain".
func Dir() (string, error) {
	if d := strings.TrimSpace(os.Getenv(DirEnv)); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "sfexplain"), nil
}

// Load reads dir/config.yaml over the defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	return cfg, nil
}

// Save writes cfg to dir/config.yaml.
func Save(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"SFEXPLAIN_MODEL":           &c.Model,
		"SFEXPLAIN_API_VERSION":     &c.APIVersion,
		"SFEXPLAIN_COOKIE_FILE":     &c.CookieFile,
		"SFEXPLAIN_FIREFOX_PROFILE": &c.FirefoxProfile,
		"OPENAI_BASE_URL":           &c.OpenAIBaseURL,
	}
	for name, dst := range strs {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(getenv("SFEXPLAIN_OBFUSCATE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SFEXPLAIN_OBFUSCATE %q: %w", v, err)
		}
		c.ObfuscateFields = b
	}
	return nil
}

// Flag names understood by ApplyFlags.
const (
	FlagModel          = "model"
	FlagAPIVersion     = "api-version"
	FlagObfuscate      = "obfuscate"
	FlagCookieFile     = "cookie-file"
	FlagFirefoxProfile = "firefox-profile"
	FlagTimeout        = "timeout"
)

// RegisterFlags adds the setting flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagModel, d.Model, "OpenAI model to use")
	fs.String(FlagAPIVersion, d.APIVersion, "Salesforce REST API version")
	fs.Bool(FlagObfuscate, d.ObfuscateFields, "Replace field names with placeholders before calling the model")
	fs.String(FlagCookieFile, "", "Netscape cookies.txt file to read the sid cookie from")
	fs.String(FlagFirefoxProfile, "", "Firefox profile directory to read the sid cookie from")
	fs.Duration(FlagTimeout, d.Timeout, "Timeout for the whole request")
}

// ApplyFlags overrides settings with flags the user set explicitly.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	if fs.Changed(FlagModel) {
		c.Model, err = fs.GetString(FlagModel)
	}
	if err == nil && fs.Changed(FlagAPIVersion) {
		c.APIVersion, err = fs.GetString(FlagAPIVersion)
	}
	if err == nil && fs.Changed(FlagObfuscate) {
		c.ObfuscateFields, err = fs.GetBool(FlagObfuscate)
	}
	if err == nil && fs.Changed(FlagCookieFile) {
		c.CookieFile, err = fs.GetString(FlagCookieFile)
	}
	if err == nil && fs.Changed(FlagFirefoxProfile) {
		c.FirefoxProfile, err = fs.GetString(FlagFirefoxProfile)
	}
	if err == nil && fs.Changed(FlagTimeout) {
		c.Timeout, err = fs.GetDuration(FlagTimeout)
	}
	return err
}

// Set assigns a single setting by its config.yaml key, converting value to the
// field's type.
func (c *Config) Set(key, value string) error {
	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := d.Decode(map[string]any{key: value}); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return c.Validate()
}

// Validate checks values that would otherwise fail later in the chain.
func (c *Config) Validate() error {
	if c.SessionCache != CacheMemory && c.SessionCache != CacheKeyring {
		return fmt.Errorf("session_cache must be %q or %q, got %q", CacheMemory, CacheKeyring, c.SessionCache)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if _, err := salesforce.NewClient(c.APIVersion); err != nil {
		return err
	}
	return nil
}

// Entry is one key/value pair for display.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entries lists the settings in file order.
func (c *Config) Entries() []Entry {
	return []Entry{
		{"model", c.Model},
		{"obfuscate_fields", strconv.FormatBool(c.ObfuscateFields)},
		{"protect_custom_fields", strconv.FormatBool(c.ProtectCustomFields)},
		{"protect_standard_fields", strconv.FormatBool(c.ProtectStandardFields)},
		{"protect_sensitive_fields", strconv.FormatBool(c.ProtectSensitiveFields)},
		{"api_version", c.APIVersion},
		{"openai_base_url", c.OpenAIBaseURL},
		{"cookie_file", c.CookieFile},
		{"firefox_profile", c.FirefoxProfile},
		{"session_cache", c.SessionCache},
		{"timeout", c.Timeout.String()},
		{"serve_addr", c.ServeAddr},
	}
}

// ExplainOptions converts the obfuscation settings.
func (c *Config) ExplainOptions() explain.Options {
	return explain.Options{
		Obfuscate: c.ObfuscateFields,
		Protection: obfuscate.Options{
			ProtectCustom:    c.ProtectCustomFields,
			ProtectStandard:  c.ProtectStandardFields,
			ProtectSensitive: c.ProtectSensitiveFields,
		},
	}
}
