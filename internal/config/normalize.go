package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHoster()
	c.normalizeEngine()
	c.normalizeSearch()
	c.normalizeAPI()
	c.normalizeSync()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.IncompleteDir) == "" {
		c.Paths.IncompleteDir = defaultIncompleteDir
	}
	if c.Paths.IncompleteDir, err = expandPath(c.Paths.IncompleteDir); err != nil {
		return fmt.Errorf("paths.incomplete_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHoster() {
	c.Hoster.BaseURL = strings.TrimSpace(c.Hoster.BaseURL)
	if c.Hoster.BaseURL == "" {
		if value, ok := os.LookupEnv("WHARF_HOSTER_URL"); ok {
			c.Hoster.BaseURL = strings.TrimSpace(value)
		}
	}
	c.Hoster.BaseURL = strings.TrimRight(c.Hoster.BaseURL, "/")
	c.Hoster.APIToken = strings.TrimSpace(c.Hoster.APIToken)
	if c.Hoster.APIToken == "" {
		if value, ok := os.LookupEnv("WHARF_HOSTER_TOKEN"); ok {
			c.Hoster.APIToken = strings.TrimSpace(value)
		}
	}
	if c.Hoster.RequestTimeout <= 0 {
		c.Hoster.RequestTimeout = defaultHosterTimeout
	}
}

func (c *Config) normalizeEngine() {
	if c.Engine.MaxConcurrentDownloads <= 0 {
		c.Engine.MaxConcurrentDownloads = defaultMaxConcurrentDownloads
	}
	if c.Engine.SegmentsPerTask <= 0 {
		c.Engine.SegmentsPerTask = defaultSegmentsPerTask
	}
	if c.Engine.SegmentsPerTask > MaxSegmentsPerTask {
		c.Engine.SegmentsPerTask = MaxSegmentsPerTask
	}
	if c.Engine.SpeedLimitBPS < 0 {
		c.Engine.SpeedLimitBPS = 0
	}
	if c.Engine.MaxRetries <= 0 {
		c.Engine.MaxRetries = defaultMaxRetries
	}
	if c.Engine.BackoffInitialSeconds <= 0 {
		c.Engine.BackoffInitialSeconds = defaultBackoffInitialSeconds
	}
	if c.Engine.BackoffCeilingSeconds <= 0 {
		c.Engine.BackoffCeilingSeconds = defaultBackoffCeilingSeconds
	}
	if c.Engine.IOTimeoutSeconds <= 0 {
		c.Engine.IOTimeoutSeconds = defaultIOTimeoutSeconds
	}
	if c.Engine.QueuePollInterval <= 0 {
		c.Engine.QueuePollInterval = defaultQueuePollInterval
	}
}

func (c *Config) normalizeSearch() {
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = defaultSearchMaxResults
	}
	if c.Search.QueryBudget <= 0 {
		c.Search.QueryBudget = defaultSearchQueryBudget
	}
	if c.Search.MinScore < 0 {
		c.Search.MinScore = 0
	}
	if c.Search.MinScore > 100 {
		c.Search.MinScore = 100
	}
	if len(c.Search.Categories) == 0 {
		c.Search.Categories = []string{"movies", "tv"}
	}
	cleaned := c.Search.Categories[:0]
	for _, category := range c.Search.Categories {
		category = strings.ToLower(strings.TrimSpace(category))
		if category != "" {
			cleaned = append(cleaned, category)
		}
	}
	c.Search.Categories = cleaned
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.APIKey = strings.TrimSpace(c.API.APIKey)
	if c.API.APIKey == "" {
		if value, ok := os.LookupEnv("WHARF_API_KEY"); ok {
			c.API.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.BatchIntervalMS <= 0 {
		c.Sync.BatchIntervalMS = defaultSyncBatchIntervalMS
	}
	if c.Sync.StatsIntervalSeconds <= 0 {
		c.Sync.StatsIntervalSeconds = defaultSyncStatsIntervalSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
