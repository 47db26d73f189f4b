package dispatch

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the file form of a pipeline setup, as read by LoadConfig.
//
//	backend: cpu
//	kernel:
//	  source: builtin:sample
//	  entry_point: sample
//	geometry: pad
//	work_group_fallback: device-default
//	build_log_limit: 2048
//	log_level: info
//	storage:
//	  endpoint: localhost:9000
//	  region: us-east-1
type Config struct {
	Backend           string        `yaml:"backend"`
	Kernel            KernelConfig  `yaml:"kernel"`
	Geometry          string        `yaml:"geometry,omitempty"`
	WorkGroupFallback string        `yaml:"work_group_fallback,omitempty"`
	BuildLogLimit     int           `yaml:"build_log_limit,omitempty"`
	LogLevel          string        `yaml:"log_level,omitempty"`
	Storage           StorageConfig `yaml:"storage,omitempty"`
}

// KernelConfig locates the kernel source. Source is a location understood
// by the kernelsrc package: "builtin:<name>", a file path, or
// "s3://bucket/key". An empty EntryPoint selects the entry point named by a
// builtin location, or DefaultEntryPoint.
type KernelConfig struct {
	Source     string `yaml:"source"`
	EntryPoint string `yaml:"entry_point,omitempty"`
}

// StorageConfig holds the object storage settings for kernel sources kept
// in a bucket. Credentials are usually supplied through the environment,
// see ApplyEnv.
type StorageConfig struct {
	Endpoint     string `yaml:"endpoint,omitempty"`
	AccessKey    string `yaml:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty"`
	SessionToken string `yaml:"session_token,omitempty"`
	Region       string `yaml:"region,omitempty"`
	UseSSL       bool   `yaml:"use_ssl,omitempty"`
}

// Environment variables read by ApplyEnv.
const (
	EnvStorageEndpoint     = "DISPATCH_S3_ENDPOINT"
	EnvStorageAccessKey    = "DISPATCH_S3_ACCESS_KEY"
	EnvStorageSecretKey    = "DISPATCH_S3_SECRET_KEY"
	EnvStorageSessionToken = "DISPATCH_S3_SESSION_TOKEN"
	EnvStorageRegion       = "DISPATCH_S3_REGION"
	EnvStorageUseSSL       = "DISPATCH_S3_USE_SSL"
)

// DefaultConfig returns the configuration used when no file is given: the
// cpu backend running the builtin sample kernel.
func DefaultConfig() Config {
	return Config{
		Backend:           "cpu",
		Kernel:            KernelConfig{Source: "builtin:" + DefaultEntryPoint},
		Geometry:          GeometryPad.String(),
		WorkGroupFallback: FallbackDeviceDefault.String(),
		BuildLogLimit:     DefaultBuildLogLimit,
		LogLevel:          "info",
		Storage:           StorageConfig{Region: "us-east-1"},
	}
}

// LoadConfig reads a YAML configuration file. Keys missing from the file
// keep their DefaultConfig values. Environment overrides are applied and
// the result is validated.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "reading config %q", path)
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %q", path)
	}
	return cfg, nil
}

// ParseConfig decodes YAML configuration data. See LoadConfig.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode")
	}
	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides the storage settings with the DISPATCH_S3_* variables
// that are set.
func (c *Config) ApplyEnv() error {
	for key, dst := range map[string]*string{
		EnvStorageEndpoint:     &c.Storage.Endpoint,
		EnvStorageAccessKey:    &c.Storage.AccessKey,
		EnvStorageSecretKey:    &c.Storage.SecretKey,
		EnvStorageSessionToken: &c.Storage.SessionToken,
		EnvStorageRegion:       &c.Storage.Region,
	} {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(EnvStorageUseSSL); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parse %s", EnvStorageUseSSL)
		}
		c.Storage.UseSSL = b
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot use.
// Storage settings are checked by the loader that uses them.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Backend) == "" {
		return errors.New("backend is required")
	}
	if strings.TrimSpace(c.Kernel.Source) == "" {
		return errors.New("kernel.source is required")
	}
	if _, err := parseGeometry(c.Geometry); err != nil {
		return err
	}
	if _, err := parseFallback(c.WorkGroupFallback); err != nil {
		return err
	}
	if c.BuildLogLimit < 0 {
		return errors.Errorf("build_log_limit must not be negative: %d", c.BuildLogLimit)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if strings.Contains(c.Storage.Endpoint, "://") {
		return errors.Errorf("storage.endpoint must not include scheme: %q", c.Storage.Endpoint)
	}
	return nil
}

// Options returns the pipeline options described by the configuration.
// The configuration must be valid.
func (c Config) Options() []Option {
	g, _ := parseGeometry(c.Geometry)
	f, _ := parseFallback(c.WorkGroupFallback)
	return []Option{
		WithGeometry(g),
		WithWorkGroupFallback(f),
		WithBuildLogLimit(c.BuildLogLimit),
	}
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseGeometry(s string) (Geometry, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pad":
		return GeometryPad, nil
	case "exact":
		return GeometryExact, nil
	default:
		return 0, errors.Errorf("geometry must be pad or exact: %q", s)
	}
}

func parseFallback(s string) (Fallback, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "device-default":
		return FallbackDeviceDefault, nil
	case "fail":
		return FallbackFail, nil
	default:
		return 0, errors.Errorf("work_group_fallback must be device-default or fail: %q", s)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Wrapf(err, "log_level %q", s)
	}
	return l, nil
}
