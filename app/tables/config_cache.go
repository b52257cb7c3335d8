package tables

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/product-comb/app/catalog"
)

var tableNameRe = regexp.MustCompile(`^[a-z0-9]+_[A-Z]{2}$`)

type ConfigCache struct {
	tablesDir string
	cache     map[string]*Config
	mu        sync.RWMutex
}

func NewConfigCache(tablesDir string) *ConfigCache {
	return &ConfigCache{
		tablesDir: tablesDir,
		cache:     make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.tablesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.tablesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		tableName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(tableName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Table configuration loaded", "table", tableName, "enabled", config.Enabled, "extractor", config.Extractor, "seeds", len(config.Seeds))
	}

	return cc.checkSharedSources()
}

// checkSharedSources rejects tables of one source whose rate gate settings
// differ. The gate counts requests per source, not per table.
func (cc *ConfigCache) checkSharedSources() error {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	first := make(map[string]*Config)
	for _, name := range cc.sortedNames() {
		tableConfig := cc.cache[name]
		other, ok := first[tableConfig.Source]
		if !ok {
			first[tableConfig.Source] = tableConfig
			continue
		}
		if other.RateLimit.Threshold != tableConfig.RateLimit.Threshold || other.RateLimit.Cooldown != tableConfig.RateLimit.Cooldown {
			return fmt.Errorf("tables %s and %s share source %q but set different rate_limit threshold or cooldown",
				other.Name, tableConfig.Name, tableConfig.Source)
		}
	}
	return nil
}

func (cc *ConfigCache) LoadConfig(tableName string) (*Config, error) {
	configFile := cc.getConfigFilePath(tableName)
	tableConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	tableConfig.Name = tableName

	if err := cc.validateConfig(tableConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[tableConfig.Name] = tableConfig

	return tableConfig, nil
}

func (cc *ConfigCache) GetConfig(tableName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	tableConfig, ok := cc.cache[tableName]
	if !ok {
		return nil, &UnknownTableError{Name: tableName}
	}
	return tableConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

// Names returns the loaded table names in lexical order.
func (cc *ConfigCache) Names() []string {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.sortedNames()
}

func (cc *ConfigCache) sortedNames() []string {
	names := make([]string, 0, len(cc.cache))
	for k := range cc.cache {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	tableConfig := Config{Enabled: true}
	if err := yaml.Unmarshal(data, &tableConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if tableConfig.Merchant == "" {
		tableConfig.Merchant = tableConfig.Source
	}
	if tableConfig.RateLimit.Threshold == 0 {
		tableConfig.RateLimit.Threshold = 250
	}
	if tableConfig.RateLimit.Cooldown == 0 {
		tableConfig.RateLimit.Cooldown = 60
	}
	if tableConfig.RateLimit.RequestsPerSecond == 0 {
		tableConfig.RateLimit.RequestsPerSecond = 2
	}
	if tableConfig.MaxDepth == 0 {
		tableConfig.MaxDepth = 3
	}

	return &tableConfig, nil
}

func (cc *ConfigCache) validateConfig(tableConfig *Config) error {
	if tableConfig == nil {
		return fmt.Errorf("tableConfig is nil")
	}

	requiredFields := map[string]string{
		"source":    tableConfig.Source,
		"country":   tableConfig.Country,
		"extractor": tableConfig.Extractor,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if !tableNameRe.MatchString(tableConfig.Name) {
		return fmt.Errorf("table name %q must look like <source>_<COUNTRY>", tableConfig.Name)
	}
	if want := tableConfig.Source + "_" + strings.ToUpper(tableConfig.Country); tableConfig.Name != want {
		return fmt.Errorf("table name %q does not match source and country (%s)", tableConfig.Name, want)
	}

	nonNegativeFields := map[string]float64{
		"rate limit threshold":           float64(tableConfig.RateLimit.Threshold),
		"rate limit cooldown":            float64(tableConfig.RateLimit.Cooldown),
		"rate limit requests per second": tableConfig.RateLimit.RequestsPerSecond,
		"max depth":                      float64(tableConfig.MaxDepth),
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if tableConfig.Schedule != "" {
		if _, err := cron.ParseStandard(tableConfig.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", tableConfig.Schedule, err)
		}
	}

	var err error
	if tableConfig.DetailPattern == "" {
		return fmt.Errorf("detail_pattern is required")
	}
	if tableConfig.detailRe, err = regexp.Compile(tableConfig.DetailPattern); err != nil {
		return fmt.Errorf("invalid detail_pattern: %w", err)
	}
	if tableConfig.ListingPattern != "" {
		if tableConfig.listingRe, err = regexp.Compile(tableConfig.ListingPattern); err != nil {
			return fmt.Errorf("invalid listing_pattern: %w", err)
		}
	}

	if len(tableConfig.Seeds) == 0 && len(tableConfig.Feeds) == 0 {
		return fmt.Errorf("at least one seed or feed is required")
	}
	for i, seed := range tableConfig.Seeds {
		if err := validateSeed(seed); err != nil {
			return fmt.Errorf("seed at index %d: %w", i, err)
		}
	}
	for i, feed := range tableConfig.Feeds {
		if err := validateSeed(feed); err != nil {
			return fmt.Errorf("feed at index %d: %w", i, err)
		}
	}

	return nil
}

func validateSeed(seed Seed) error {
	if seed.URL == "" {
		return fmt.Errorf("url is required")
	}
	if _, err := catalog.ParseCategory(seed.Category); err != nil {
		return err
	}
	if seed.Gender != "" {
		if _, err := catalog.ParseGender(seed.Gender); err != nil {
			return err
		}
	}
	if seed.ConsumerLifestage != "" {
		if _, err := catalog.ParseLifestage(seed.ConsumerLifestage); err != nil {
			return err
		}
	}
	return nil
}

func (cc *ConfigCache) getConfigFilePath(tableName string) string {
	return filepath.Join(cc.tablesDir, tableName+".yml")
}
