package constants

// Default pipeline configuration values
const (
	DefaultLimitFetch          = 100
	DefaultProcessDelaySeconds = 10
	DefaultMaxQueueSize        = 0
	DefaultRetentionMonths     = 6
	DefaultTimezone            = "Europe/Berlin"
	DefaultStatsHashtag        = "MeldungenStats"
	DefaultStatsTitle          = "Neue Meldungen"
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 3
	DefaultDatabaseRetryAttempts = 3
)

// Default timeout values
const (
	DefaultSourceTimeoutSec  = 30
	DefaultPublishTimeoutSec = 60
	DefaultAlertTimeoutSec   = 10
)

// Circuit breaker around the portal
const (
	DefaultSourceMaxFailures     = 3
	DefaultSourceBreakerResetSec = 60
)

// Storage layout
const (
	DefaultDataDir       = "."
	DefaultStorageDriver = "file"
	TenantsDir           = "tenants"
	ArchiveDir           = "archive"
	AllMessagesFile      = "all-messages.json"
	WeeklyStatsFile      = "weekly-stats.json"
)

// Weekly statistics
const (
	StatsLookbackWeeks = 10
	StatsMaxLines      = 8
	StatsMaxBlocks     = 15
	StatsPerBlock      = 10
)

// Logging
const (
	DefaultLogTextLength = 60
	DefaultLogLevel      = "info"
)

// DefaultWatchIntervalMinutes separates pipeline passes in watch mode
const DefaultWatchIntervalMinutes = 15
