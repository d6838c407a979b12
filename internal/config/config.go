// Package config loads the tool configuration from a YAML file in the
// user's config directory, with sane defaults when no file exists.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/calebstewart/vmm/internal/clone"
)

// Config is the complete tool configuration.
type Config struct {
	// SocketPath is the libvirt daemon's UNIX socket. Empty selects
	// the default system socket.
	SocketPath string `yaml:"socket_path,omitempty"`

	// ConnectTimeoutSeconds bounds the initial connection handshake.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds,omitempty"`

	// ViewerCommand is the argv prefix launched by the open-viewer
	// action; the domain UUID is appended.
	ViewerCommand []string `yaml:"viewer_command,omitempty"`

	// EditorCommand is the argv prefix launched to edit a domain
	// descriptor; the temp file path is appended.
	EditorCommand []string `yaml:"editor_command,omitempty"`

	// OneShot exits the action loop after a single completed action.
	OneShot bool `yaml:"one_shot,omitempty"`

	// ClonePolicy decides whether a clone with failed disks is still
	// registered: "best-effort" or "all-or-nothing".
	ClonePolicy clone.Policy `yaml:"clone_policy,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		ConnectTimeoutSeconds: 5,
		ViewerCommand:         []string{"virt-viewer", "--uuid"},
		EditorCommand:         []string{"alacritty", "-e", "vim"},
		ClonePolicy:           clone.PolicyBestEffort,
	}
}

// ConnectTimeout returns the handshake timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("connect_timeout_seconds must be >= 0, got %d", c.ConnectTimeoutSeconds)
	}
	if !c.ClonePolicy.IsValid() {
		return fmt.Errorf("invalid clone_policy: %q (must be %s or %s)",
			c.ClonePolicy, clone.PolicyBestEffort, clone.PolicyAllOrNothing)
	}
	if len(c.ViewerCommand) == 0 {
		return fmt.Errorf("viewer_command must not be empty")
	}
	if len(c.EditorCommand) == 0 {
		return fmt.Errorf("editor_command must not be empty")
	}
	return nil
}

// DefaultPath returns the config file location under the user config
// directory (e.g. ~/.config/vmm/config.yaml).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "vmm", "config.yaml"), nil
}

// Load reads the configuration from path. An empty path selects
// DefaultPath; a missing file yields Default().
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return LoadFromYAML(data)
}

// LoadFromYAML parses configuration YAML over the defaults, so absent
// keys keep their default values.
func LoadFromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
