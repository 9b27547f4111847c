package config

const (
	defaultStagingDir            = "~/.local/share/ferry/staging"
	defaultLogDir                = "~/.local/share/ferry/logs"
	defaultSourceBackend         = "gcs"
	defaultFetchTimeout          = 3600
	defaultTaggerBinary          = "exiftool"
	defaultTaggerTimeout         = 120
	defaultUploadRatePerSecond   = 2.0
	defaultUploadBurst           = 4
	defaultUploadTimeout         = 600
	defaultDownloadWorkers       = 2
	defaultExtractWorkers        = 1
	defaultMergeWorkers          = 4
	defaultUploadWorkers         = 6
	defaultDiskBudgetGiB         = 100
	defaultDiskRefreshInterval   = 60
	defaultRetryMaxAttempts      = 5
	defaultRetryBackoffInitial   = 5
	defaultRetryBackoffMax       = 900
	defaultQueuePollInterval     = 5
	defaultErrorRetryInterval    = 10
	defaultHeartbeatInterval     = 15
	defaultHeartbeatTimeout      = 120
	defaultDiscoveryInterval     = 300
	defaultPauseFailureThreshold = 0.25
	defaultNtfyRequestTimeout    = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			Backend:      defaultSourceBackend,
			FetchTimeout: defaultFetchTimeout,
		},
		Tagger: Tagger{
			Binary:  defaultTaggerBinary,
			Timeout: defaultTaggerTimeout,
		},
		Uploader: Uploader{
			RatePerSecond: defaultUploadRatePerSecond,
			Burst:         defaultUploadBurst,
			Timeout:       defaultUploadTimeout,
		},
		Workers: Workers{
			Download: defaultDownloadWorkers,
			Extract:  defaultExtractWorkers,
			Merge:    defaultMergeWorkers,
			Upload:   defaultUploadWorkers,
		},
		Disk: Disk{
			BudgetGiB:       defaultDiskBudgetGiB,
			RefreshInterval: defaultDiskRefreshInterval,
			CleanupEnabled:  true,
		},
		Retry: Retry{
			MaxAttempts:    defaultRetryMaxAttempts,
			BackoffInitial: defaultRetryBackoffInitial,
			BackoffMax:     defaultRetryBackoffMax,
		},
		Workflow: Workflow{
			QueuePollInterval:     defaultQueuePollInterval,
			ErrorRetryInterval:    defaultErrorRetryInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			DiscoveryInterval:     defaultDiscoveryInterval,
			PauseFailureThreshold: defaultPauseFailureThreshold,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
