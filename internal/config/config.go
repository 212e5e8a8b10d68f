package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete host configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Plugins  PluginConfig   `yaml:"plugins" json:"plugins"`
	Catalog  CatalogConfig  `yaml:"catalog" json:"catalog"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"SOUNDCROWD_HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" json:"port" env:"SOUNDCROWD_PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SOUNDCROWD_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SOUNDCROWD_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SOUNDCROWD_SHUTDOWN_TIMEOUT" default:"5s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout" env:"SOUNDCROWD_REQUEST_TIMEOUT" default:"20s"`
}

// DatabaseConfig selects and configures the storage collaborator
type DatabaseConfig struct {
	Type    string `yaml:"type" json:"type" env:"SOUNDCROWD_DB_TYPE" default:"sqlite"`
	DataDir string `yaml:"data_dir" json:"data_dir" env:"SOUNDCROWD_DATA_DIR" default:"./data"`
	Path    string `yaml:"path" json:"path" env:"SOUNDCROWD_DB_PATH"`
	URL     string `yaml:"url" json:"url" env:"SOUNDCROWD_DB_URL"`
	LogSQL  bool   `yaml:"log_sql" json:"log_sql" env:"SOUNDCROWD_DB_LOG_SQL" default:"false"`
}

// PluginConfig controls discovery and bridging of provider plugins
type PluginConfig struct {
	Dir           string        `yaml:"dir" json:"dir" env:"SOUNDCROWD_PLUGIN_DIR" default:"./plugins"`
	Prefix        string        `yaml:"prefix" json:"prefix" env:"SOUNDCROWD_PLUGIN_PREFIX" default:"soundcrowd.plugins."`
	Allow         []string      `yaml:"allow" json:"allow" env:"SOUNDCROWD_PLUGIN_ALLOW"`
	StartTimeout  time.Duration `yaml:"start_timeout" json:"start_timeout" env:"SOUNDCROWD_PLUGIN_START_TIMEOUT" default:"30s"`
	CallTimeout   time.Duration `yaml:"call_timeout" json:"call_timeout" env:"SOUNDCROWD_PLUGIN_CALL_TIMEOUT" default:"10s"`
	ResultTimeout time.Duration `yaml:"result_timeout" json:"result_timeout" env:"SOUNDCROWD_PLUGIN_RESULT_TIMEOUT" default:"2m"`
	RateLimit     float64       `yaml:"rate_limit" json:"rate_limit" env:"SOUNDCROWD_PLUGIN_RATE_LIMIT" default:"10"`
	RateBurst     int           `yaml:"rate_burst" json:"rate_burst" env:"SOUNDCROWD_PLUGIN_RATE_BURST" default:"5"`
}

// CatalogConfig controls the media catalog aggregator
type CatalogConfig struct {
	LibraryDir      string        `yaml:"library_dir" json:"library_dir" env:"SOUNDCROWD_LIBRARY_DIR"`
	WatchLibrary    bool          `yaml:"watch_library" json:"watch_library" env:"SOUNDCROWD_WATCH_LIBRARY" default:"true"`
	WatchDebounce   time.Duration `yaml:"watch_debounce" json:"watch_debounce" env:"SOUNDCROWD_WATCH_DEBOUNCE" default:"2s"`
	RefreshInterval time.Duration `yaml:"refresh_interval" json:"refresh_interval" env:"SOUNDCROWD_REFRESH_INTERVAL" default:"0s"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout" json:"resolve_timeout" env:"SOUNDCROWD_RESOLVE_TIMEOUT" default:"15s"`
	PageSize        int           `yaml:"page_size" json:"page_size" env:"SOUNDCROWD_PAGE_SIZE" default:"50"`
}

// LoggingConfig configures the root logger
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"SOUNDCROWD_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"SOUNDCROWD_LOG_FORMAT" default:"text"`
}

// ConfigManager loads and holds the host configuration
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default host configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = applyTags(reflect.ValueOf(cfg).Elem(), func(string) string { return "" }, true)
	return cfg
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment wins over the file
	if err := applyTags(reflect.ValueOf(newConfig).Elem(), os.Getenv, false); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(newConfig); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerivedConfig(newConfig)
	cm.config = newConfig

	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}
	return nil
}

// GetConfig returns a copy of the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	return &configCopy
}

// ConfigPath returns the file the configuration was loaded from, if any.
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// applyTags sets fields from their env tags, or from their default tags when
// useDefaults is set.
func applyTags(v reflect.Value, lookup func(string) string, useDefaults bool) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := applyTags(field, lookup, useDefaults); err != nil {
				return err
			}
			continue
		}

		value := ""
		if envTag := fieldType.Tag.Get("env"); envTag != "" {
			value = lookup(envTag)
		}
		if value == "" && useDefaults {
			value = fieldType.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Float32, reflect.Float64:
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatVal)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// Validate checks a configuration for values the host cannot run with.
func Validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Type != "sqlite" && config.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", config.Database.Type)
	}

	if config.Database.Type == "postgres" && config.Database.URL == "" {
		return fmt.Errorf("postgres requires database.url")
	}

	if config.Plugins.RateLimit < 0 || config.Plugins.RateBurst < 0 {
		return fmt.Errorf("invalid plugin rate limit: %v/%d", config.Plugins.RateLimit, config.Plugins.RateBurst)
	}

	if config.Catalog.PageSize < 0 {
		return fmt.Errorf("invalid page size: %d", config.Catalog.PageSize)
	}

	return nil
}

func applyDerivedConfig(config *Config) {
	if config.Database.Path == "" && config.Database.Type == "sqlite" {
		config.Database.Path = filepath.Join(config.Database.DataDir, "soundcrowd.db")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
