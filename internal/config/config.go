// Package config provides configuration loading for teamcal.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Docs    DocsConfig    `yaml:"docs"`
	Sync    SyncConfig    `yaml:"sync"`
	Window  WindowConfig  `yaml:"window"`
	Filters FilterConfig  `yaml:"filters"`
}

// ServiceConfig configures the work tracking service connection.
type ServiceConfig struct {
	URL      string `yaml:"url"`
	Project  string `yaml:"project"`
	Team     string `yaml:"team"`
	TeamID   string `yaml:"team_id"`
	ClientID string `yaml:"client_id,omitempty"` // OAuth client; defaults to the Azure CLI client
}

// DocsConfig configures the WebDAV document store holding free-form events.
type DocsConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	PasswordCmd string `yaml:"password_cmd,omitempty"`
}

// SyncConfig configures the sync daemon.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Output   string        `yaml:"output"`
}

// WindowConfig configures the materialization window around today.
type WindowConfig struct {
	Past   time.Duration `yaml:"past"`   // How far back to look (default: 4 weeks)
	Future time.Duration `yaml:"future"` // How far ahead to look (default: 8 weeks)
}

// FilterConfig configures event filtering.
type FilterConfig struct {
	Mode  string       `yaml:"mode"` // "or" or "and"
	Rules []FilterRule `yaml:"rules"`
}

// FilterRule defines a single filter rule.
// Use exactly one of: Contains, Exact, Prefix, Suffix, or Regex.
type FilterRule struct {
	Field           string `yaml:"field"`              // "title", "member", "category", "kind", "iteration", "description"
	Contains        string `yaml:"contains,omitempty"` // Substring match
	Exact           string `yaml:"exact,omitempty"`    // Exact string match
	Prefix          string `yaml:"prefix,omitempty"`   // Starts with
	Suffix          string `yaml:"suffix,omitempty"`   // Ends with
	Regex           string `yaml:"regex,omitempty"`    // Regular expression
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// Load reads configuration from the default location (~/.config/teamcal/config.yaml).
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("get config dir: %w", err)
	}

	path := filepath.Join(configDir, "teamcal", "config.yaml")
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Apply defaults
	cfg.applyDefaults()

	// Expand paths
	cfg.Sync.Output = expandPath(cfg.Sync.Output)

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Service.URL == "" {
		return fmt.Errorf("service.url is required")
	}
	if c.Service.Project == "" {
		return fmt.Errorf("service.project is required")
	}
	if c.Service.Team == "" {
		return fmt.Errorf("service.team is required")
	}
	return nil
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if c.Service.TeamID == "" {
		c.Service.TeamID = c.Service.Team
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 5 * time.Minute
	}
	if c.Sync.Output == "" {
		dataDir, _ := os.UserHomeDir()
		c.Sync.Output = filepath.Join(dataDir, ".local", "share", "teamcal", "team.ics")
	}
	if c.Window.Past == 0 {
		c.Window.Past = 4 * 7 * 24 * time.Hour
	}
	if c.Window.Future == 0 {
		c.Window.Future = 8 * 7 * 24 * time.Hour
	}
	if c.Filters.Mode == "" {
		c.Filters.Mode = "or"
	}
}

// GetPassword returns the document store password, executing password_cmd if needed.
func (d *DocsConfig) GetPassword() (string, error) {
	if d.Password != "" {
		return d.Password, nil
	}
	if d.PasswordCmd == "" {
		return "", nil
	}

	// Execute the password command
	cmd := exec.Command("sh", "-c", d.PasswordCmd)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("execute password_cmd: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// parseDuration parses a duration string, supporting "d" (days) and "w"
// (weeks) suffixes on top of the standard Go duration syntax.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		if days < 0 {
			return 0, fmt.Errorf("parse duration %q: negative", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	if n, ok := strings.CutSuffix(s, "w"); ok {
		weeks, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", s, err)
		}
		if weeks < 0 {
			return 0, fmt.Errorf("parse duration %q: negative", s)
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("parse duration %q: negative", s)
	}
	return d, nil
}

// UnmarshalYAML implements custom unmarshaling for duration fields.
func (c *SyncConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Interval string `yaml:"interval"`
		Output   string `yaml:"output"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Interval != "" {
		d, err := parseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parse interval: %w", err)
		}
		c.Interval = d
	}
	c.Output = raw.Output
	return nil
}

// UnmarshalYAML implements custom unmarshaling for window config.
func (c *WindowConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Past   string `yaml:"past"`
		Future string `yaml:"future"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.Past != "" {
		d, err := parseDuration(raw.Past)
		if err != nil {
			return fmt.Errorf("parse window past: %w", err)
		}
		c.Past = d
	}
	if raw.Future != "" {
		d, err := parseDuration(raw.Future)
		if err != nil {
			return fmt.Errorf("parse window future: %w", err)
		}
		c.Future = d
	}
	return nil
}
