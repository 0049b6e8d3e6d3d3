package config

const (
	defaultConfigPath           = "~/.config/harvester/config.toml"
	defaultDataDir              = "~/.local/share/harvester"
	defaultDownloadDir          = "~/.local/share/harvester/downloads"
	defaultLogDir               = "~/.local/share/harvester/logs"
	defaultAPIBind              = "127.0.0.1:7488"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultUserAgent            = "Mozilla/5.0 (X11; Linux x86_64) harvester/dev"
	defaultMaxPages             = 5
	defaultMinAgeDays           = 3
	defaultMinRating            = 70
	defaultMaxAgeDays           = 30
	defaultPageDelaySeconds     = 1
	defaultDiscoveryTimeout     = 30
	defaultFetchRetries         = 3
	defaultWorkers              = 2
	defaultRetryCeiling         = 3
	defaultMaxDownloadQueue     = 20
	defaultProgressIntervalMS   = 500
	defaultUploadTimeout        = 0
	defaultNotifyRequestTimeout = 10
	defaultUploadBackend        = UploadBackendFilesystem
	maxWorkers                  = 8
)

// Upload backends.
const (
	UploadBackendFilesystem = "filesystem"
	UploadBackendHTTP       = "http"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Discovery: Discovery{
			MaxPages:         defaultMaxPages,
			MinAgeDays:       defaultMinAgeDays,
			MinRating:        defaultMinRating,
			MaxAgeDays:       defaultMaxAgeDays,
			PageDelaySeconds: defaultPageDelaySeconds,
			RequestTimeout:   defaultDiscoveryTimeout,
			UserAgent:        defaultUserAgent,
			FetchRetries:     defaultFetchRetries,
		},
		Workflow: Workflow{
			DownloadWorkers:    defaultWorkers,
			UploadWorkers:      defaultWorkers,
			RetryCeiling:       defaultRetryCeiling,
			MaxDownloadQueue:   defaultMaxDownloadQueue,
			ProgressIntervalMS: defaultProgressIntervalMS,
		},
		Upload: Upload{
			Backend:        defaultUploadBackend,
			RequestTimeout: defaultUploadTimeout,
			DeleteLocal:    true,
			VerifySize:     true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			TaskCompleted:  true,
			TaskFailed:     true,
			Cycle:          true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
