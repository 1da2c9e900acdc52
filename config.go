package browserstate

import (
	"errors"
	"fmt"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/minus-twelve/browserstate/types"
	yamlv3 "gopkg.in/yaml.v3"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const EnvPrefix = "BROWSERSTATE_"

const redacted = "********"

// DefaultConfig is the configuration used for keys absent from file and env.
func DefaultConfig() types.Config {
	return types.Config{
		ObjectStore: types.ObjectStoreConfig{UseSSL: true},
	}
}

// DefaultConfigPath is ~/.config/browserstate/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "browserstate", "config.yaml"), nil
}

// LoadConfig reads a YAML file and then applies BROWSERSTATE_* environment
// variables on top. An empty path loads DefaultConfigPath when it exists.
func LoadConfig(path string) (types.Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		def, err := DefaultConfigPath()
		if err == nil {
			path = def
		}
	}

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case err != nil:
			return types.Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return types.Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return types.Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return types.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// envKey maps BROWSERSTATE_REDIS_KEY_PREFIX style names onto config keys:
// the first segment selects the section, the rest is the field name.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	if key == "user_id" {
		return key
	}
	if rest, ok := strings.CutPrefix(key, "object_store_"); ok {
		return "object_store." + rest
	}
	section, field, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + field
}

// EncodeConfig renders cfg as YAML with credentials masked.
func EncodeConfig(cfg types.Config) ([]byte, error) {
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
	if cfg.ObjectStore.SecretAccessKey != "" {
		cfg.ObjectStore.SecretAccessKey = redacted
	}
	if cfg.ObjectStore.SessionToken != "" {
		cfg.ObjectStore.SessionToken = redacted
	}
	return yamlv3.Marshal(cfg)
}
