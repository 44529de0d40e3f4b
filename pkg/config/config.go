// Package config loads and stores the bubo configuration file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/bubo/pkg/attrs"
	"github.com/ssargent/bubo/pkg/hashset"
	"github.com/ssargent/bubo/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config represents the bubo configuration
type Config struct {
	DataDir    string     `yaml:"data_dir"`
	Port       int        `yaml:"port"`
	Bind       string     `yaml:"bind"`
	Security   Security   `yaml:"security"`
	Logging    Logging    `yaml:"logging"`
	Attributes Attributes `yaml:"attributes"`
	HashSet    HashSet    `yaml:"hash_set"`
	Store      Store      `yaml:"store"`
}

// Security contains security-related configuration
type Security struct {
	// APIKey is required in the X-API-Key header when set.
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	// Quiet discards log output.
	Quiet bool `yaml:"quiet"`
}

// Attributes configures how attribute sets are canonicalized
type Attributes struct {
	// Ignored tags are dropped from every attribute set.
	Ignored           []string `yaml:"ignored,omitempty"`
	MaxAttrStringSize int      `yaml:"max_attr_string_size"`
}

// HashSet sizes the in-memory set of attribute records
type HashSet struct {
	InitialSize uint32 `yaml:"initial_size"`
	MaxSize     uint32 `yaml:"max_size"`
	Hash        string `yaml:"hash"`
	Seed        uint32 `yaml:"seed"`
}

// Store configures the operation log
type Store struct {
	FsyncInterval time.Duration `yaml:"fsync_interval"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Attributes: Attributes{
			MaxAttrStringSize: attrs.DefaultMaxAttrStringSize,
		},
		HashSet: HashSet{
			InitialSize: hashset.DefaultInitialSize,
			MaxSize:     hashset.DefaultMaxSize,
			Hash:        hashset.HashJenkins,
		},
	}
}

// Validate checks that the configuration can be used to open a store.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("port %d out of range", c.Port)
	}
	if c.Attributes.MaxAttrStringSize < 0 {
		return errors.Newf("max_attr_string_size %d is negative", c.Attributes.MaxAttrStringSize)
	}
	if c.HashSet.MaxSize != 0 && c.HashSet.MaxSize < c.HashSet.InitialSize {
		return errors.Newf("hash_set.max_size %d is below initial_size %d",
			c.HashSet.MaxSize, c.HashSet.InitialSize)
	}
	if _, err := hashset.HashFunc(c.HashSet.Hash, c.HashSet.Seed); err != nil {
		return err
	}
	if c.Store.FsyncInterval < 0 {
		return errors.Newf("store.fsync_interval %v is negative", c.Store.FsyncInterval)
	}
	return nil
}

// StoreConfig translates the configuration into the options of a store.
func (c *Config) StoreConfig() (store.StoreConfig, error) {
	hash, err := hashset.HashFunc(c.HashSet.Hash, c.HashSet.Seed)
	if err != nil {
		return store.StoreConfig{}, err
	}
	return store.StoreConfig{
		DataDir:       c.DataDir,
		FsyncInterval: c.Store.FsyncInterval,
		Attributes: attrs.Options{
			Ignored:           append([]string(nil), c.Attributes.Ignored...),
			MaxAttrStringSize: c.Attributes.MaxAttrStringSize,
			HashSet: &hashset.Options{
				InitialSize: c.HashSet.InitialSize,
				MaxSize:     c.HashSet.MaxSize,
				Hash:        hash,
			},
		},
	}, nil
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	// fields missing from the file keep their defaults
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig writes a default configuration with a generated API key to
// configPath.
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./bubo.yaml"
	}
	return filepath.Join(homeDir, ".config", "bubo", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
