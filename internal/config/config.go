package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/amanthanvi/keystash/internal/codec"
	"github.com/amanthanvi/keystash/internal/crypto"
	"github.com/amanthanvi/keystash/internal/keystore"
	"github.com/amanthanvi/keystash/internal/prefs"
)

const (
	defaultLogLevel     = "warn"
	defaultLogMaxSizeMB = 10
	defaultLogMaxFiles  = 5
	defaultCodec        = "json"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Keystore    KeystoreConfig    `toml:"keystore"`
	Secure      SecureConfig      `toml:"secure"`
	Preferences PreferencesConfig `toml:"preferences"`
	Logging     LoggingConfig     `toml:"logging"`
}

type KeystoreConfig struct {
	// Path is the SQLite keystore file. Empty resolves under the data home.
	Path               string `toml:"path"`
	DefaultAccessGroup string `toml:"default_access_group"`
	Argon2MemoryKiB    uint32 `toml:"argon2_memory_kib"`
	Argon2Iterations   uint32 `toml:"argon2_iterations"`
}

type SecureConfig struct {
	Synchronizable bool   `toml:"synchronizable"`
	AccessGroup    string `toml:"access_group"`
	Codec          string `toml:"codec"`
}

type PreferencesConfig struct {
	Dir                   string `toml:"dir"`
	Suite                 string `toml:"suite"`
	Codec                 string `toml:"codec"`
	IgnoreMissingOnRemove bool   `toml:"ignore_missing_on_remove"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

type LoadOptions struct {
	ConfigPath string
	Env        map[string]string
	Flags      FlagOverrides
}

type FlagOverrides struct {
	KeystorePath   *string
	PreferencesDir *string
	Suite          *string
	LogLevel       *string
}

func DefaultConfig() Config {
	return Config{
		Keystore: KeystoreConfig{
			DefaultAccessGroup: keystore.DefaultAccessGroup,
			Argon2MemoryKiB:    crypto.DefaultArgon2MemoryKiB,
			Argon2Iterations:   crypto.DefaultArgon2Iterations,
		},
		Secure: SecureConfig{
			Codec: defaultCodec,
		},
		Preferences: PreferencesConfig{
			Suite: prefs.DefaultSuite,
			Codec: defaultCodec,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load resolves the effective configuration: defaults, then the TOML file,
// then KEYSTASH_* environment variables, then flags.
func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	configPath, err := resolveConfigPath(opts)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}
	if err := loadAndApplyFile(configPath, &cfg); err != nil {
		return Config{}, err
	}
	if err := applyEnvOverrides(&cfg, opts); err != nil {
		return Config{}, err
	}
	applyFlagOverrides(&cfg, opts.Flags)

	if err := resolveDataPaths(&cfg, opts); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Argon2 returns the KEK derivation parameters for the keystore.
func (c KeystoreConfig) Argon2() crypto.Argon2Params {
	return crypto.Argon2Params{
		Memory:     c.Argon2MemoryKiB,
		Iterations: c.Argon2Iterations,
	}.WithDefaults()
}

type rawConfig struct {
	Keystore    *rawKeystore    `toml:"keystore"`
	Secure      *rawSecure      `toml:"secure"`
	Preferences *rawPreferences `toml:"preferences"`
	Logging     *rawLogging     `toml:"logging"`
}

type rawKeystore struct {
	Path               *string `toml:"path"`
	DefaultAccessGroup *string `toml:"default_access_group"`
	Argon2MemoryKiB    *uint32 `toml:"argon2_memory_kib"`
	Argon2Iterations   *uint32 `toml:"argon2_iterations"`
}

type rawSecure struct {
	Synchronizable *bool   `toml:"synchronizable"`
	AccessGroup    *string `toml:"access_group"`
	Codec          *string `toml:"codec"`
}

type rawPreferences struct {
	Dir                   *string `toml:"dir"`
	Suite                 *string `toml:"suite"`
	Codec                 *string `toml:"codec"`
	IgnoreMissingOnRemove *bool   `toml:"ignore_missing_on_remove"`
}

type rawLogging struct {
	Level     *string `toml:"level"`
	File      *string `toml:"file"`
	MaxSizeMB *int    `toml:"max_size_mb"`
	MaxFiles  *int    `toml:"max_files"`
}

func loadAndApplyFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %q: %w", path, err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: parse TOML file %q: %v", ErrInvalidConfig, path, err)
	}
	applyRawConfig(cfg, raw)
	return nil
}

func applyRawConfig(cfg *Config, raw rawConfig) {
	if k := raw.Keystore; k != nil {
		set(k.Path, &cfg.Keystore.Path)
		set(k.DefaultAccessGroup, &cfg.Keystore.DefaultAccessGroup)
		set(k.Argon2MemoryKiB, &cfg.Keystore.Argon2MemoryKiB)
		set(k.Argon2Iterations, &cfg.Keystore.Argon2Iterations)
	}
	if s := raw.Secure; s != nil {
		set(s.Synchronizable, &cfg.Secure.Synchronizable)
		set(s.AccessGroup, &cfg.Secure.AccessGroup)
		set(s.Codec, &cfg.Secure.Codec)
	}
	if p := raw.Preferences; p != nil {
		set(p.Dir, &cfg.Preferences.Dir)
		set(p.Suite, &cfg.Preferences.Suite)
		set(p.Codec, &cfg.Preferences.Codec)
		set(p.IgnoreMissingOnRemove, &cfg.Preferences.IgnoreMissingOnRemove)
	}
	if l := raw.Logging; l != nil {
		set(l.Level, &cfg.Logging.Level)
		set(l.File, &cfg.Logging.File)
		set(l.MaxSizeMB, &cfg.Logging.MaxSizeMB)
		set(l.MaxFiles, &cfg.Logging.MaxFiles)
	}
}

func set[T any](raw *T, target *T) {
	if raw != nil {
		*target = *raw
	}
}

func applyEnvOverrides(cfg *Config, opts LoadOptions) error {
	stringVars := []struct {
		name   string
		target *string
	}{
		{"KEYSTASH_KEYSTORE_PATH", &cfg.Keystore.Path},
		{"KEYSTASH_KEYSTORE_DEFAULT_ACCESS_GROUP", &cfg.Keystore.DefaultAccessGroup},
		{"KEYSTASH_SECURE_ACCESS_GROUP", &cfg.Secure.AccessGroup},
		{"KEYSTASH_SECURE_CODEC", &cfg.Secure.Codec},
		{"KEYSTASH_PREFERENCES_DIR", &cfg.Preferences.Dir},
		{"KEYSTASH_PREFERENCES_SUITE", &cfg.Preferences.Suite},
		{"KEYSTASH_PREFERENCES_CODEC", &cfg.Preferences.Codec},
		{"KEYSTASH_LOG_LEVEL", &cfg.Logging.Level},
		{"KEYSTASH_LOG_FILE", &cfg.Logging.File},
	}
	for _, s := range stringVars {
		if value, ok := lookupEnv(opts, s.name); ok {
			*s.target = value
		}
	}

	bools := []struct {
		name   string
		target *bool
	}{
		{"KEYSTASH_SECURE_SYNCHRONIZABLE", &cfg.Secure.Synchronizable},
		{"KEYSTASH_PREFERENCES_IGNORE_MISSING_ON_REMOVE", &cfg.Preferences.IgnoreMissingOnRemove},
	}
	for _, b := range bools {
		value, ok := lookupEnv(opts, b.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, b.name, err)
		}
		*b.target = parsed
	}

	ints := []struct {
		name   string
		target *int
	}{
		{"KEYSTASH_LOG_MAX_SIZE_MB", &cfg.Logging.MaxSizeMB},
		{"KEYSTASH_LOG_MAX_FILES", &cfg.Logging.MaxFiles},
	}
	for _, i := range ints {
		value, ok := lookupEnv(opts, i.name)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, i.name, err)
		}
		*i.target = parsed
	}

	uints := []struct {
		name   string
		target *uint32
	}{
		{"KEYSTASH_KEYSTORE_ARGON2_MEMORY_KIB", &cfg.Keystore.Argon2MemoryKiB},
		{"KEYSTASH_KEYSTORE_ARGON2_ITERATIONS", &cfg.Keystore.Argon2Iterations},
	}
	for _, u := range uints {
		value, ok := lookupEnv(opts, u.name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, u.name, err)
		}
		*u.target = uint32(parsed)
	}

	return nil
}

func applyFlagOverrides(cfg *Config, flags FlagOverrides) {
	set(flags.KeystorePath, &cfg.Keystore.Path)
	set(flags.PreferencesDir, &cfg.Preferences.Dir)
	set(flags.Suite, &cfg.Preferences.Suite)
	set(flags.LogLevel, &cfg.Logging.Level)
}

func validate(cfg Config) error {
	if _, err := codec.ByName(cfg.Secure.Codec); err != nil {
		return fmt.Errorf("%w: secure.codec: %v", ErrInvalidConfig, err)
	}
	if _, err := codec.ByName(cfg.Preferences.Codec); err != nil {
		return fmt.Errorf("%w: preferences.codec: %v", ErrInvalidConfig, err)
	}
	if err := prefs.ValidateSuite(cfg.Preferences.Suite); err != nil {
		return fmt.Errorf("%w: preferences.suite: %v", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(cfg.Keystore.DefaultAccessGroup) == "" {
		return fmt.Errorf("%w: keystore.default_access_group must not be empty", ErrInvalidConfig)
	}
	if err := cfg.Keystore.Argon2().Validate(); err != nil {
		return fmt.Errorf("%w: keystore: %v", ErrInvalidConfig, err)
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: logging.level must be one of debug, info, warn, error", ErrInvalidConfig)
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxFiles < 0 {
		return fmt.Errorf("%w: logging limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

func resolveDataPaths(cfg *Config, opts LoadOptions) error {
	if cfg.Keystore.Path != "" && cfg.Preferences.Dir != "" {
		return nil
	}
	home, err := keystashHome(opts)
	if err != nil {
		return fmt.Errorf("resolve data home: %w", err)
	}
	if cfg.Keystore.Path == "" {
		cfg.Keystore.Path = filepath.Join(home, "keystore.db")
	}
	if cfg.Preferences.Dir == "" {
		cfg.Preferences.Dir = filepath.Join(home, "preferences")
	}
	return nil
}

func resolveConfigPath(opts LoadOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	if value, ok := lookupEnv(opts, "KEYSTASH_CONFIG_PATH"); ok {
		return value, nil
	}
	return defaultConfigPath(opts)
}

func lookupEnv(opts LoadOptions, key string) (string, bool) {
	if opts.Env != nil {
		if value, ok := opts.Env[key]; ok {
			return value, true
		}
	}
	return os.LookupEnv(key)
}

func keystashHome(opts LoadOptions) (string, error) {
	if value, ok := lookupEnv(opts, "KEYSTASH_HOME"); ok && value != "" {
		return value, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Keystash"), nil
	}

	dataHome := filepath.Join(home, ".local", "share")
	if xdgDataHome, ok := lookupEnv(opts, "XDG_DATA_HOME"); ok && xdgDataHome != "" {
		dataHome = xdgDataHome
	}
	return filepath.Join(dataHome, "keystash"), nil
}

func defaultConfigPath(opts LoadOptions) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Keystash", "config.toml"), nil
	}

	configHome := filepath.Join(home, ".config")
	if xdgConfigHome, ok := lookupEnv(opts, "XDG_CONFIG_HOME"); ok && xdgConfigHome != "" {
		configHome = xdgConfigHome
	}
	return filepath.Join(configHome, "keystash", "config.toml"), nil
}
