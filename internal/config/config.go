// Package config loads the pipeline's runtime configuration: secrets and
// connection endpoints from environment variables (the same from_env shape
// as the original's KafkaConsumerConfig.from_env/MongoConnectionConfig.from_env),
// layered with an optional YAML defaults file for per-stage tuning that
// isn't secret or environment-specific.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// KafkaConfig mirrors the original's KafkaConsumerConfig/KafkaProducerConfig
// from_env pair, collapsed into one struct since this pipeline's Gateway
// owns both a consumer and a producer client per process.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	GroupID          string `yaml:"group_id"`
	ClientID         string `yaml:"client_id"`
	AutoOffsetReset  string `yaml:"auto_offset_reset"`
}

// KafkaConfigFromEnv reads KAFKA_BOOTSTRAP_SERVERS and
// KAFKA_AUTO_OFFSET_RESET, the Go-idiomatic spelling of the original's
// KAFKA_BOOSTRAP_SERVERS (a typo in the source this pipeline does not
// carry forward — see DESIGN.md Open Question decisions).
func KafkaConfigFromEnv(groupID string) (KafkaConfig, error) {
	bootstrap, err := requireEnv("KAFKA_BOOTSTRAP_SERVERS")
	if err != nil {
		return KafkaConfig{}, err
	}
	offsetReset, err := requireEnv("KAFKA_AUTO_OFFSET_RESET")
	if err != nil {
		return KafkaConfig{}, err
	}
	return KafkaConfig{
		BootstrapServers: bootstrap,
		GroupID:          groupID,
		ClientID:         os.Getenv("KAFKA_CLIENT_ID"),
		AutoOffsetReset:  offsetReset,
	}, nil
}

// MongoConfig mirrors the original's MongoConnectionConfig: username and
// password are escaped per RFC 3986 before being embedded in the URI, and
// the authSource=admin query parameter is carried forward unchanged.
type MongoConfig struct {
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// MongoConfigFromEnv reads SCRAWLER_MONGO_SUPERUSER_USER/PASS/HOST/PORT/DATABASE,
// the original's exact env var names.
func MongoConfigFromEnv() (MongoConfig, error) {
	fields := map[string]*string{}
	cfg := MongoConfig{}
	fields["SCRAWLER_MONGO_SUPERUSER_USER"] = &cfg.Username
	fields["SCRAWLER_MONGO_SUPERUSER_PASS"] = &cfg.Password
	fields["SCRAWLER_MONGO_HOST"] = &cfg.Host
	fields["SCRAWLER_MONGO_PORT"] = &cfg.Port
	fields["SCRAWLER_MONGO_DATABASE"] = &cfg.Database
	for name, dst := range fields {
		v, err := requireEnv(name)
		if err != nil {
			return MongoConfig{}, err
		}
		*dst = v
	}
	return cfg, nil
}

// URI builds a mongodb:// connection string with credentials escaped per
// RFC 3986, matching the original's MongoConnectionConfig.uri property.
func (c MongoConfig) URI() string {
	return fmt.Sprintf(
		"mongodb://%s:%s@%s:%s/%s?authSource=admin",
		url.QueryEscape(c.Username), url.QueryEscape(c.Password),
		c.Host, c.Port, c.Database,
	)
}

// SourceCredentials is the authenticated source's login pair, used by
// crawler.Auth.
type SourceCredentials struct {
	Username string
	Password string
}

// SourceCredentialsFromEnv reads HANDSHAKE_USERNAME/HANDSHAKE_PASSWORD.
func SourceCredentialsFromEnv() (SourceCredentials, error) {
	username, err := requireEnv("HANDSHAKE_USERNAME")
	if err != nil {
		return SourceCredentials{}, err
	}
	password, err := requireEnv("HANDSHAKE_PASSWORD")
	if err != nil {
		return SourceCredentials{}, err
	}
	return SourceCredentials{Username: username, Password: password}, nil
}

// StageTuning holds the non-secret per-stage worker knobs the YAML overlay
// file supplies, the same role the teacher's PipelineConfig yaml tags play
// for its crawler/processor/sink policies.
type StageTuning struct {
	E1 struct {
		MaxConcurrency int           `yaml:"max_concurrency"`
		PollTimeout    time.Duration `yaml:"poll_timeout"`
	} `yaml:"e1"`
	E2 struct {
		MaxConcurrency int           `yaml:"max_concurrency"`
		BufSize        int           `yaml:"buf_size"`
		BufTimeout     time.Duration `yaml:"buf_timeout"`
		PollTimeout    time.Duration `yaml:"poll_timeout"`
	} `yaml:"e2"`
	T1 struct {
		PollTimeout time.Duration `yaml:"poll_timeout"`
	} `yaml:"t1"`
	T2 struct {
		PollTimeout time.Duration `yaml:"poll_timeout"`
	} `yaml:"t2"`
	Retry struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Base        time.Duration `yaml:"base"`
		Cap         time.Duration `yaml:"cap"`
	} `yaml:"retry"`
	SessionPath    string `yaml:"session_path"`
	MetricsBackend string `yaml:"metrics_backend"`
}

// DefaultStageTuning matches the original's per-stage config defaults
// (MSG_BUF_SIZE=100, MSG_BUF_TIMEOUT=30s from HandshakeExtractor2Config)
// and spec.md §5's backoff defaults.
func DefaultStageTuning() StageTuning {
	var t StageTuning
	t.E1.MaxConcurrency = 5
	t.E1.PollTimeout = 5 * time.Second
	t.E2.MaxConcurrency = 5
	t.E2.BufSize = 100
	t.E2.BufTimeout = 30 * time.Second
	t.E2.PollTimeout = 5 * time.Second
	t.T1.PollTimeout = 5 * time.Second
	t.T2.PollTimeout = 5 * time.Second
	t.Retry.MaxAttempts = 3
	t.Retry.Base = 500 * time.Millisecond
	t.Retry.Cap = 10 * time.Second
	t.SessionPath = "/var/lib/handshake-pipeline/session.json"
	t.MetricsBackend = "noop"
	return t
}

// LoadStageTuning applies DefaultStageTuning, then overlays path's contents
// if path is non-empty and the file exists. A missing path is not an error,
// matching the original's from_env classmethods treating absent optional
// settings as "use the default".
func LoadStageTuning(path string) (StageTuning, error) {
	cfg := DefaultStageTuning()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read stage tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse stage tuning file: %w", err)
	}
	return cfg, nil
}

func requireEnv(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("config: required environment variable %s is not set", name)
	}
	return v, nil
}
