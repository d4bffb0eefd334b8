/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	applog "blockstudio/internal/log"
	"blockstudio/internal/style"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	Theme string `yaml:"theme"` // "system" | "light" | "dark" (informational for now)
}

type EditorConfig struct {
	HistoryMaxDepth   int     `yaml:"history_max_depth"`
	HistoryMaxBytes   int     `yaml:"history_max_bytes"`
	HistoryMergeMs    int     `yaml:"history_merge_ms"`
	DuplicateOffsetPx float64 `yaml:"duplicate_offset_px"`
	FitPaddingX       float64 `yaml:"fit_padding_x"`
	FitPaddingY       float64 `yaml:"fit_padding_y"`
	DefaultBreakpoint string  `yaml:"default_breakpoint"`
	// StrictIDs turns duplicate block ids into panics (development builds).
	StrictIDs bool `yaml:"strict_ids"`
}

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver string `yaml:"driver"` // "file" | "sqlite" (file + index) | "postgres"
	Root   string `yaml:"root"`
	// PostgresDSN must not carry a password; it lives in the OS keychain.
	PostgresDSN   string `yaml:"postgres_dsn"`
	KeepSnapshots int    `yaml:"keep_snapshots"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Editor        EditorConfig  `yaml:"editor"`
	Storage       StorageConfig `yaml:"storage"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Editor: EditorConfig{
			HistoryMaxDepth:   200,
			HistoryMaxBytes:   16 * 1024 * 1024,
			HistoryMergeMs:    500,
			DuplicateOffsetPx: 20,
			FitPaddingX:       300,
			FitPaddingY:       200,
			DefaultBreakpoint: string(style.Desktop),
		},
		Storage: StorageConfig{Driver: DriverSQLite, Root: "", KeepSnapshots: 20},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath    = "BST_CONFIG"
	EnvHistoryDepth  = "BST_HISTORY_MAX_DEPTH"
	EnvHistoryBytes  = "BST_HISTORY_MAX_BYTES"
	EnvBreakpoint    = "BST_BREAKPOINT"
	EnvStrictIDs     = "BST_STRICT_IDS"
	EnvStorageDriver = "BST_STORAGE_DRIVER"
	EnvStorageRoot   = "BST_STORAGE_ROOT"
	EnvPostgresDSN   = "BST_PG_DSN"
	EnvPostgresPass  = "BST_PG_PASSWORD"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "BST_LOG_LEVEL"
	EnvLogFormat = "BST_LOG_FORMAT"
	EnvLogSource = "BST_LOG_SOURCE"
	EnvLogFile   = "BST_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "BlockStudio"
	keyringPassword = "postgres_password"
)

// secretStore abstracts the keyring so tests can stub it.
var secretStore SecretStore = osKeyring{}

type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements SecretStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. BST_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "BlockStudio")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "BlockStudio")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "blockstudio")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "blockstudio")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// The Postgres password comes from BST_PG_PASSWORD or, for the postgres driver, the keyring and is
// returned separately.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applog.WithComponent("config").Warn("config file ignored", slog.String("path", path), slog.Any("err", err))
		} else {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	pass := strings.TrimSpace(os.Getenv(EnvPostgresPass))
	if pass == "" && cfg.Storage.Driver == DriverPostgres {
		pass, _ = secretStore.Get(keyringService, keyringPassword)
	}
	return cfg, pass, nil
}

// Save writes the user config YAML and persists the password into the OS keyring (if non-empty).
func Save(cfg AppConfig, password string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if password != "" {
		if err := secretStore.Set(keyringService, keyringPassword, password); err != nil {
			return err
		}
	}
	return nil
}

// ForgetPassword removes the stored Postgres password.
func ForgetPassword() error {
	err := secretStore.Delete(keyringService, keyringPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// editor
	if src.Editor.HistoryMaxDepth != 0 {
		dst.Editor.HistoryMaxDepth = src.Editor.HistoryMaxDepth
	}
	if src.Editor.HistoryMaxBytes != 0 {
		dst.Editor.HistoryMaxBytes = src.Editor.HistoryMaxBytes
	}
	if src.Editor.HistoryMergeMs != 0 {
		dst.Editor.HistoryMergeMs = src.Editor.HistoryMergeMs
	}
	if src.Editor.DuplicateOffsetPx != 0 {
		dst.Editor.DuplicateOffsetPx = src.Editor.DuplicateOffsetPx
	}
	if src.Editor.FitPaddingX != 0 {
		dst.Editor.FitPaddingX = src.Editor.FitPaddingX
	}
	if src.Editor.FitPaddingY != 0 {
		dst.Editor.FitPaddingY = src.Editor.FitPaddingY
	}
	if s := strings.TrimSpace(src.Editor.DefaultBreakpoint); s != "" {
		dst.Editor.DefaultBreakpoint = strings.ToLower(s)
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Editor.StrictIDs = src.Editor.StrictIDs
	// storage
	if s := strings.TrimSpace(src.Storage.Driver); s != "" {
		dst.Storage.Driver = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Storage.Root); s != "" {
		dst.Storage.Root = s
	}
	if s := strings.TrimSpace(src.Storage.PostgresDSN); s != "" {
		dst.Storage.PostgresDSN = s
	}
	if src.Storage.KeepSnapshots != 0 {
		dst.Storage.KeepSnapshots = src.Storage.KeepSnapshots
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvHistoryDepth)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Editor.HistoryMaxDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryBytes)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Editor.HistoryMaxBytes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBreakpoint)); v != "" {
		cfg.Editor.DefaultBreakpoint = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStrictIDs)); v != "" {
		cfg.Editor.StrictIDs = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageRoot)); v != "" {
		cfg.Storage.Root = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideKeys = map[string]string{
	"editor.history_max_depth":  EnvHistoryDepth,
	"editor.history_max_bytes":  EnvHistoryBytes,
	"editor.default_breakpoint": EnvBreakpoint,
	"editor.strict_ids":         EnvStrictIDs,
	"storage.driver":            EnvStorageDriver,
	"storage.root":              EnvStorageRoot,
	"storage.postgres_dsn":      EnvPostgresDSN,
	"logging.level":             EnvLogLevel,
	"logging.format":            EnvLogFormat,
	"logging.source":            EnvLogSource,
	"logging.file":              EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Validate rejects unknown drivers and breakpoints.
func (c AppConfig) Validate() error {
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := style.ParseBreakpoint(c.Editor.DefaultBreakpoint); err != nil {
		return err
	}
	return nil
}

// Breakpoint is the parsed default breakpoint; invalid values fall back to desktop.
func (e EditorConfig) Breakpoint() style.Breakpoint {
	bp, err := style.ParseBreakpoint(e.DefaultBreakpoint)
	if err != nil {
		return style.Desktop
	}
	return bp
}

// MergeInterval is HistoryMergeMs as a duration.
func (e EditorConfig) MergeInterval() time.Duration {
	return time.Duration(e.HistoryMergeMs) * time.Millisecond
}

// LogOptions maps the logging section to logger options.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}

// StorageRoot resolves the page store directory, defaulting next to the config file.
func (s StorageConfig) StorageRoot() (string, error) {
	if strings.TrimSpace(s.Root) != "" {
		return s.Root, nil
	}
	p, err := ConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(p), "pages"), nil
}

// DSNWithPassword adds password to a URL-form DSN whose user has none.
func (s StorageConfig) DSNWithPassword(password string) string {
	if password == "" {
		return s.PostgresDSN
	}
	u, err := url.Parse(s.PostgresDSN)
	if err != nil || u.Scheme == "" || u.User == nil {
		return s.PostgresDSN
	}
	if _, set := u.User.Password(); set {
		return s.PostgresDSN
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String()
}
