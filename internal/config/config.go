// Package config handles mdhexport credential file parsing and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Profile is the INI section holding the study credentials.
const Profile = "default"

var (
	// ErrNotFound is returned when the config file does not exist or is not a regular file.
	ErrNotFound = errors.New("config file not found, check path or permissions")
	// ErrNoDefaultProfile is returned when the config file has no [default] section.
	ErrNoDefaultProfile = errors.New("default profile not found inside the configuration file")
)

// Config holds the connection settings for the study's query service.
type Config struct {
	AccessKeyID     string        `mapstructure:"aws_access_key_id"`
	SecretAccessKey string        `mapstructure:"aws_secret_access_key"`
	SessionToken    string        `mapstructure:"aws_session_token"`
	StagingDir      string        `mapstructure:"s3_staging_dir"`
	Region          string        `mapstructure:"region_name"`
	Schema          string        `mapstructure:"schema_name"`
	WorkGroup       string        `mapstructure:"work_group"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PageSize        int64         `mapstructure:"page_size"`
}

// requiredKeys lists the keys that must be present under [default].
var requiredKeys = []string{
	"aws_access_key_id",
	"aws_secret_access_key",
	"aws_session_token",
	"s3_staging_dir",
	"region_name",
	"schema_name",
	"work_group",
}

// DefaultConfig returns a configuration with the optional settings filled in.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: time.Second,
		PageSize:     1000,
	}
}

// Load reads the INI file at path and decodes its [default] section.
// Values can be overridden with MDH_-prefixed environment variables,
// e.g. MDH_AWS_SESSION_TOKEN.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	// Keys outside any section land in ini's DEFAULT section, which viper
	// would also answer for "default". Only an explicit [default] counts.
	raw, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if !raw.HasSection(Profile) {
		return nil, ErrNoDefaultProfile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	sub := v.Sub(Profile)
	if sub == nil {
		return nil, ErrNoDefaultProfile
	}

	defaults := DefaultConfig()
	sub.SetDefault("poll_interval", defaults.PollInterval.String())
	sub.SetDefault("page_size", defaults.PageSize)
	sub.SetEnvPrefix("MDH")
	for _, key := range requiredKeys {
		_ = sub.BindEnv(key)
	}

	cfg := DefaultConfig()
	cfg.AccessKeyID = sub.GetString("aws_access_key_id")
	cfg.SecretAccessKey = sub.GetString("aws_secret_access_key")
	cfg.SessionToken = sub.GetString("aws_session_token")
	cfg.StagingDir = sub.GetString("s3_staging_dir")
	cfg.Region = sub.GetString("region_name")
	cfg.Schema = sub.GetString("schema_name")
	cfg.WorkGroup = sub.GetString("work_group")
	cfg.PollInterval = sub.GetDuration("poll_interval")
	cfg.PageSize = sub.GetInt64("page_size")

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	values := map[string]string{
		"aws_access_key_id":     c.AccessKeyID,
		"aws_secret_access_key": c.SecretAccessKey,
		"aws_session_token":     c.SessionToken,
		"s3_staging_dir":        c.StagingDir,
		"region_name":           c.Region,
		"schema_name":           c.Schema,
		"work_group":            c.WorkGroup,
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing keys in [%s]: %s", Profile, strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(c.StagingDir, "s3://") {
		return fmt.Errorf("invalid s3_staging_dir: %s (must start with s3://)", c.StagingDir)
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}

	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("page_size must be between 1 and 1000, got %d", c.PageSize)
	}

	return nil
}

// String describes the connection without exposing secrets.
func (c *Config) String() string {
	return fmt.Sprintf("region=%s schema=%s work_group=%s staging=%s key=%s",
		c.Region, c.Schema, c.WorkGroup, c.StagingDir, Mask(c.AccessKeyID))
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
