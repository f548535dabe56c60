package uptree

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ini/ini"
)

// Config represents the uptree configuration backed by an ini file
type Config struct {
	configPath string
	ini        *ini.File
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	Workers int // Number of concurrent reconciliation workers (default: 4)
}

// CacheConfig represents content caching configuration
type CacheConfig struct {
	ContentNames []string // Base filenames whose content is fetched eagerly during reconciliation
}

// IgnoreConfig represents listing exclusion configuration
type IgnoreConfig struct {
	IncludeHidden bool     // Include dot-prefixed entries in listings (default: false)
	Patterns      []string // Regular expressions excluding matching relative paths
}

// LoadConfig loads configuration from the given ini file, creating it
// with defaults when it does not exist
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, fmt.Errorf("failed to set default config: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	} else {
		iniFile, err := ini.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.ini = iniFile
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	performanceSection, err := c.ini.NewSection("performance")
	if err != nil {
		return fmt.Errorf("failed to create performance section: %w", err)
	}
	if _, err = performanceSection.NewKey("workers", "4"); err != nil {
		return fmt.Errorf("failed to set default workers: %w", err)
	}

	cacheSection, err := c.ini.NewSection("cache")
	if err != nil {
		return fmt.Errorf("failed to create cache section: %w", err)
	}
	if _, err = cacheSection.NewKey("content_names", ""); err != nil {
		return fmt.Errorf("failed to set default content_names: %w", err)
	}

	ignoreSection, err := c.ini.NewSection("ignore")
	if err != nil {
		return fmt.Errorf("failed to create ignore section: %w", err)
	}
	if _, err = ignoreSection.NewKey("include_hidden", "false"); err != nil {
		return fmt.Errorf("failed to set default include_hidden: %w", err)
	}
	if _, err = ignoreSection.NewKey("patterns", ""); err != nil {
		return fmt.Errorf("failed to set default patterns: %w", err)
	}

	return nil
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	perf := &PerformanceConfig{
		Workers: 4, // fallback default
	}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("workers") {
			if v, err := section.Key("workers").Int(); err == nil {
				perf.Workers = v
			}
		}
	}

	return perf
}

// GetCacheConfig returns the content caching configuration
func (c *Config) GetCacheConfig() *CacheConfig {
	cache := &CacheConfig{}

	if c.ini.HasSection("cache") {
		section := c.ini.Section("cache")
		if section.HasKey("content_names") {
			cache.ContentNames = splitConfigList(section.Key("content_names").String())
		}
	}

	return cache
}

// GetIgnoreConfig returns the listing exclusion configuration
func (c *Config) GetIgnoreConfig() *IgnoreConfig {
	ignore := &IgnoreConfig{}

	if c.ini.HasSection("ignore") {
		section := c.ini.Section("ignore")
		if section.HasKey("include_hidden") {
			if v, err := section.Key("include_hidden").Bool(); err == nil {
				ignore.IncludeHidden = v
			}
		}
		if section.HasKey("patterns") {
			ignore.Patterns = splitConfigList(section.Key("patterns").String())
		}
	}

	return ignore
}

// Save writes the configuration back to its file
func (c *Config) Save() error {
	if err := c.ini.SaveTo(c.configPath); err != nil {
		return fmt.Errorf("failed to save config to %s: %w", c.configPath, err)
	}
	return nil
}

// ValidateWorkers checks that a worker count is usable
func ValidateWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", workers)
	}
	if workers > 128 {
		return fmt.Errorf("workers must be at most 128, got %d", workers)
	}
	return nil
}

// splitConfigList splits a comma-separated config value into trimmed,
// non-empty items
func splitConfigList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
