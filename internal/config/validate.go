package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateHoster(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateHoster() error {
	if strings.TrimSpace(c.Hoster.BaseURL) == "" {
		return errors.New("hoster.base_url must be set")
	}
	if !strings.HasPrefix(c.Hoster.BaseURL, "http://") && !strings.HasPrefix(c.Hoster.BaseURL, "https://") {
		return fmt.Errorf("hoster.base_url must start with http:// or https://, got %q", c.Hoster.BaseURL)
	}
	if c.Hoster.APIToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/wharf/config.toml"
		}
		return fmt.Errorf("hoster.api_token is required. Set WHARF_HOSTER_TOKEN env var or edit %s (create with 'wharf config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if err := ensurePositiveMap(map[string]int{
		"engine.max_concurrent_downloads": c.Engine.MaxConcurrentDownloads,
		"engine.segments_per_task":        c.Engine.SegmentsPerTask,
		"engine.max_retries":              c.Engine.MaxRetries,
		"engine.io_timeout_seconds":       c.Engine.IOTimeoutSeconds,
		"engine.queue_poll_interval":      c.Engine.QueuePollInterval,
		"hoster.request_timeout":          c.Hoster.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Engine.BackoffInitialSeconds <= 0 {
		return errors.New("engine.backoff_initial_seconds must be positive")
	}
	if c.Engine.BackoffCeilingSeconds < c.Engine.BackoffInitialSeconds {
		return errors.New("engine.backoff_ceiling_seconds must be at least engine.backoff_initial_seconds")
	}
	if c.Engine.SegmentsPerTask > MaxSegmentsPerTask {
		return fmt.Errorf("engine.segments_per_task must not exceed %d", MaxSegmentsPerTask)
	}
	return nil
}

func (c *Config) validateSearch() error {
	if c.Search.MaxResults <= 0 {
		return errors.New("search.max_results must be positive")
	}
	if c.Search.QueryBudget <= 0 {
		return errors.New("search.query_budget must be positive")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 100 {
		return errors.New("search.min_score must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if strings.TrimSpace(c.API.Bind) == "" {
		return errors.New("api.bind must be set")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.BatchIntervalMS <= 0 {
		return errors.New("sync.batch_interval_ms must be positive")
	}
	if c.Sync.StatsIntervalSeconds <= 0 {
		return errors.New("sync.stats_interval_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
