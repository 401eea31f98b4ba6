package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name of searched configuration files.
	ConfigFileName = "plantex"

	// EnvPrefix prefixes environment overrides, e.g. PLANTEX_SERVER_PORT.
	EnvPrefix = "PLANTEX"
)

// Loader resolves a Config from defaults, a YAML file, PLANTEX_*
// environment variables and bound command-line flags, in increasing order
// of precedence.
type Loader struct {
	v *viper.Viper
}

// NewIsolatedLoader creates a loader with its own viper instance, so
// several loaders (one per command execution) never share flag bindings.
func NewIsolatedLoader() *Loader {
	return &Loader{v: viper.New()}
}

// Load searches the standard locations for plantex.yaml and validates the
// result. Not finding a file is not an error.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithFile reads configFile, which must exist.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation is LoadWithFile without Validate; an empty
// configFile searches the standard locations.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range GetConfigSearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	if err := l.setDefaults(); err != nil {
		return nil, err
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &cfg, nil
}

// setDefaults registers every field of DefaultConfig under its dotted key.
// AutomaticEnv only resolves keys viper knows about, so all of them are
// registered, including empty ones.
func (l *Loader) setDefaults() error {
	tree, err := defaultTree()
	if err != nil {
		return err
	}
	flatten("", tree, func(key string, value any) {
		l.v.SetDefault(key, value)
	})
	return nil
}

func defaultTree() (map[string]any, error) {
	bts, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(bts, &tree); err != nil {
		return nil, fmt.Errorf("decode defaults: %w", err)
	}
	return tree, nil
}

func flatten(prefix string, node map[string]any, set func(string, any)) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, set)
			continue
		}
		set(key, v)
	}
}

// GetConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper exposes the viper instance for flag binding.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// Settings returns the resolved key tree.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// GenerateDefaultConfigFile writes DefaultConfig as YAML to filename
// (plantex.yaml when empty).
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	bts, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	header := "# plantex configuration. Environment variables (PLANTEX_SERVER_PORT, ...)\n" +
		"# and command-line flags override these values.\n"
	return os.WriteFile(filename, append([]byte(header), bts...), 0o600)
}

// GetConfigSearchPaths lists the directories searched for plantex.yaml,
// in order.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	if dir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && dir != "" {
		paths = append(paths, filepath.Join(dir, ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName), home)
	}
	return append(paths, "/etc/"+ConfigFileName)
}
