package config

const (
	defaultDownloadDir   = "~/downloads"
	defaultIncompleteDir = "~/.local/share/wharf/incomplete"
	defaultLogDir        = "~/.local/share/wharf/logs"
	defaultStateDir      = "~/.local/share/wharf"

	defaultHosterTimeout = 30

	defaultMaxConcurrentDownloads = 3
	defaultSegmentsPerTask        = 4
	defaultMaxRetries             = 5
	defaultBackoffInitialSeconds  = 5
	defaultBackoffCeilingSeconds  = 300
	defaultIOTimeoutSeconds       = 30
	defaultQueuePollInterval      = 2

	defaultSearchMaxResults  = 50
	defaultSearchQueryBudget = 8

	defaultAPIBind = "127.0.0.1:9797"

	defaultSyncBatchIntervalMS      = 750
	defaultSyncStatsIntervalSeconds = 10

	defaultNotifyRequestTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// MaxSegmentsPerTask bounds the per-task fan-out regardless of configuration.
const MaxSegmentsPerTask = 16

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir:   defaultDownloadDir,
			IncompleteDir: defaultIncompleteDir,
			LogDir:        defaultLogDir,
			StateDir:      defaultStateDir,
		},
		Hoster: Hoster{
			RequestTimeout: defaultHosterTimeout,
		},
		Engine: Engine{
			MaxConcurrentDownloads: defaultMaxConcurrentDownloads,
			SegmentsPerTask:        defaultSegmentsPerTask,
			MaxRetries:             defaultMaxRetries,
			BackoffInitialSeconds:  defaultBackoffInitialSeconds,
			BackoffCeilingSeconds:  defaultBackoffCeilingSeconds,
			IOTimeoutSeconds:       defaultIOTimeoutSeconds,
			QueuePollInterval:      defaultQueuePollInterval,
			VerifySize:             true,
			ExtractArchives:        true,
		},
		Search: Search{
			MaxResults:  defaultSearchMaxResults,
			QueryBudget: defaultSearchQueryBudget,
			Categories:  []string{"movies", "tv"},
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Sync: Sync{
			BatchIntervalMS:      defaultSyncBatchIntervalMS,
			StatsIntervalSeconds: defaultSyncStatsIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Daemon:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
