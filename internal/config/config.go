package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// ConstantsPaths are YAML constants versions loaded in addition to the
	// built-in set.
	ConstantsPaths []string `yaml:"constants_paths"`
	// ActiveVersion selects the default constants version for new
	// computations. Empty means the built-in set.
	ActiveVersion string           `yaml:"active_version"`
	DB            DBConfig         `yaml:"db"`
	SigningKey    SigningKeyConfig `yaml:"signing_key"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // "", "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}
	if c.SigningKey.PrivateKeyPath != "" && c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required when a private key is configured")
	}
	return nil
}
