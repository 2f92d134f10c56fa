package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 7071
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	DefaultRateLimitPerMinute = 60

	DefaultWorkzoneAPIURL            = "https://api.workzone.com"
	DefaultTimeoutSeconds            = 30
	DefaultMaxRetryAttempts          = 3
	DefaultRetryDelayMilliseconds    = 1000
	DefaultRetryMaxDelayMilliseconds = 30000
	DefaultBreakerFailureThreshold   = 5
	DefaultBreakerCooldownSeconds    = 30

	DefaultServiceName = "WorkzoneMCP"
	DefaultMCPName     = "workzone-mcp-server"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

// Version is reported by initialize and /health. Set at build time with
// -ldflags "-X github.com/workzone/workzone-mcp/internal/config.Version=...".
var Version = "1.0.0"
