package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec          = 30
	DefaultPublishHTTPTimeoutSec   = 60
	DefaultMediaDownloadTimeoutSec = 30
)

// Public API endpoints of the publish backends
const (
	DefaultTwitterAPIURL    = "https://api.twitter.com/1.1"
	DefaultTwitterUploadURL = "https://upload.twitter.com/1.1"
	DefaultMastodonAPIURL   = "https://mastodon.social/api/v1"
)

// Post length limits of the publish backends
const (
	TwitterMaxStatusLength  = 280
	MastodonMaxStatusLength = 500
)

// File size constants used by media packages
const (
	BytesPerMegabyte        = 1024 * 1024
	DefaultMaxImageSizeMB   = 5
	MimeDetectionBufferSize = 512
)

// Error bodies are truncated to this many bytes before they end up in an error
const MaxErrorBodyBytes = 1024

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Media file type constants
var DefaultImageTypes = []string{"jpg", "jpeg", "png", "gif"}
