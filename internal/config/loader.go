package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// SettingsFileName is the base settings file looked up next to the
	// executable and in the working directory
	SettingsFileName = "appsettings.json"

	appName         = "aoichat"
	secretsFileName = "secrets.json"
)

// Loader resolves configuration from, in increasing precedence: defaults,
// the settings file, the user secrets file, environment variables and
// command-line flags.
type Loader struct {
	configPath  string
	secretsPath string
	searchDirs  []string
	flags       *pflag.FlagSet

	files []string
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit settings file. It must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configPath = path
	}
}

// WithSecretsFile sets an explicit secrets file. It must exist.
func WithSecretsFile(path string) LoaderOption {
	return func(l *Loader) {
		l.secretsPath = path
	}
}

// WithSearchDirs replaces the directories searched for appsettings.json
func WithSearchDirs(dirs ...string) LoaderOption {
	return func(l *Loader) {
		l.searchDirs = dirs
	}
}

// WithFlags binds command-line flags named after the configuration keys
func WithFlags(flags *pflag.FlagSet) LoaderOption {
	return func(l *Loader) {
		l.flags = flags
	}
}

// NewLoader creates a new config loader
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.searchDirs == nil {
		l.searchDirs = defaultSearchDirs()
	}
	return l
}

// Load resolves and validates the configuration. When the endpoint or the API
// key is missing the returned error wraps ErrConfigurationMissing.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	settingsPath, err := l.settingsFile()
	if err != nil {
		return nil, err
	}
	if settingsPath != "" {
		v.SetConfigFile(settingsPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		l.files = append(l.files, settingsPath)
	}

	secretsPath, err := l.secretsFile()
	if err != nil {
		return nil, err
	}
	if secretsPath != "" {
		v.SetConfigFile(secretsPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read secrets file: %w", err)
		}
		l.files = append(l.files, secretsPath)
	}

	for _, key := range Keys {
		if err := v.BindEnv(key.Name); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", key.Name, err)
		}
	}

	if l.flags != nil {
		for _, key := range Keys {
			flag := l.flags.Lookup(key.Name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key.Name, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", key.Name, err)
			}
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Files returns the configuration files read by the last Load
func (l *Loader) Files() []string {
	return append([]string(nil), l.files...)
}

// settingsFile returns the settings file to read, or "" when there is none
func (l *Loader) settingsFile() (string, error) {
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", l.configPath, err)
		}
		return l.configPath, nil
	}

	for _, dir := range l.searchDirs {
		path := filepath.Join(dir, SettingsFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}

// secretsFile returns the secrets file to merge, or "" when there is none
func (l *Loader) secretsFile() (string, error) {
	if l.secretsPath != "" {
		if _, err := os.Stat(l.secretsPath); err != nil {
			return "", fmt.Errorf("secrets file %s: %w", l.secretsPath, err)
		}
		return l.secretsPath, nil
	}

	path := DefaultSecretsPath()
	if path == "" {
		return "", nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("secrets file %s: %w", path, err)
	}
	return path, nil
}

// DefaultSecretsPath returns <user config dir>/aoichat/secrets.json
func DefaultSecretsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, secretsFileName)
}

func defaultSearchDirs() []string {
	dirs := []string{}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}
