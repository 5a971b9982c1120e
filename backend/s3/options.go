package s3

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grokify/omniarchive"
)

// Config holds configuration for the S3 backend.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1").
	// If empty, uses AWS_REGION or AWS_DEFAULT_REGION environment variable.
	// Buckets are created with a location constraint outside us-east-1.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services.
	// Examples:
	//   - MinIO: "http://localhost:9000"
	//   - Cloudflare R2: "https://<account_id>.r2.cloudflarestorage.com"
	// Leave empty for AWS S3. A host without a scheme gets "https://",
	// or "http://" when DisableSSL is set.
	Endpoint string

	// AccessKeyID is the AWS access key ID.
	// If empty, uses AWS_ACCESS_KEY_ID environment variable or IAM role.
	AccessKeyID string

	// SecretAccessKey is the AWS secret access key.
	// If empty, uses AWS_SECRET_ACCESS_KEY environment variable or IAM role.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing instead of virtual-hosted-style.
	// Required for MinIO and some older S3-compatible services.
	UsePathStyle bool

	// DisableSSL disables HTTPS for the endpoint.
	// Only use for local development (e.g., local MinIO).
	DisableSSL bool

	// Timeout bounds each HTTP request. 0 means no timeout.
	Timeout time.Duration

	// MaxAttempts is the number of attempts per request, including the
	// first. 0 uses the SDK default.
	MaxAttempts int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - OMNIARCHIVE_S3_REGION or AWS_REGION or AWS_DEFAULT_REGION: region
//   - OMNIARCHIVE_S3_ENDPOINT: custom endpoint
//   - AWS_ACCESS_KEY_ID: access key
//   - AWS_SECRET_ACCESS_KEY: secret key
//   - AWS_SESSION_TOKEN: session token
//   - OMNIARCHIVE_S3_USE_PATH_STYLE: "true" for path-style addressing
//   - OMNIARCHIVE_S3_DISABLE_SSL: "true" to disable SSL
//   - OMNIARCHIVE_S3_TIMEOUT: request timeout, e.g. "30s"
//   - OMNIARCHIVE_S3_MAX_ATTEMPTS: attempts per request
func ConfigFromEnv() Config {
	config := DefaultConfig()

	// Region
	if v := os.Getenv("OMNIARCHIVE_S3_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		config.Region = v
	} else if v := os.Getenv("AWS_DEFAULT_REGION"); v != "" {
		config.Region = v
	}

	if v := os.Getenv("OMNIARCHIVE_S3_ENDPOINT"); v != "" {
		config.Endpoint = v
	}

	// Credentials from environment (AWS SDK will also pick these up)
	config.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	config.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	config.SessionToken = os.Getenv("AWS_SESSION_TOKEN")

	if isTrue(os.Getenv("OMNIARCHIVE_S3_USE_PATH_STYLE")) {
		config.UsePathStyle = true
	}
	if isTrue(os.Getenv("OMNIARCHIVE_S3_DISABLE_SSL")) {
		config.DisableSSL = true
	}
	if d, err := time.ParseDuration(os.Getenv("OMNIARCHIVE_S3_TIMEOUT")); err == nil && d >= 0 {
		config.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("OMNIARCHIVE_S3_MAX_ATTEMPTS")); err == nil && n > 0 {
		config.MaxAttempts = n
	}

	return config
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - region: AWS region
//   - endpoint: custom endpoint URL
//   - access_key_id: AWS access key
//   - secret_access_key: AWS secret key
//   - session_token: session token
//   - use_path_style: "true" for path-style addressing
//   - disable_ssl: "true" to disable SSL
//   - timeout: request timeout, e.g. "30s"
//   - max_attempts: attempts per request
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["region"]; ok {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok && isTrue(v) {
		config.UsePathStyle = true
	}
	if v, ok := m["disable_ssl"]; ok && isTrue(v) {
		config.DisableSSL = true
	}
	if v, ok := m["timeout"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			config.Timeout = d
		}
	}
	if v, ok := m["max_attempts"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxAttempts = n
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Endpoint != "" {
		if _, err := url.Parse(c.EndpointURL()); err != nil {
			return &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "s3 config", Msg: "invalid endpoint", Err: err}
		}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "s3 config", Msg: "access_key_id and secret_access_key must be set together"}
	}
	if c.Timeout < 0 || c.MaxAttempts < 0 {
		return &omniarchive.Error{Kind: omniarchive.KindValidation, Op: "s3 config", Msg: "timeout and max_attempts must not be negative"}
	}
	return nil
}

// EndpointURL returns Endpoint with a scheme, or "" when no endpoint is set.
func (c Config) EndpointURL() string {
	if c.Endpoint == "" || strings.Contains(c.Endpoint, "://") {
		return c.Endpoint
	}
	if c.DisableSSL {
		return "http://" + c.Endpoint
	}
	return "https://" + c.Endpoint
}

func isTrue(v string) bool {
	return v == "true" || v == "1"
}
