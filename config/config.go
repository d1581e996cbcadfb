package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	RentRadar RentRadarConfig `yaml:"rentradar"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Rules     RulesConfig     `yaml:"rules"`
	Source    SourceConfig    `yaml:"source"`
	Reference ReferenceConfig `yaml:"reference"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type RentRadarConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer       int `yaml:"raw_buffer"`
	ViolationBuffer int `yaml:"violation_buffer"`
	ArchiveBuffer   int `yaml:"archive_buffer"`
}

type ReaderConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ProcessorConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// RulesConfig carries the jurisdiction parameters of the emergency order.
// Dates use the 2006-01-02 form. BaselineCutoffDate defaults to the day
// before DeclarationDate and RelistingCutoffDate to one year before it, so
// most deployments only set declaration_date.
type RulesConfig struct {
	DeclarationDate     string  `yaml:"declaration_date"`
	BaselineCutoffDate  string  `yaml:"baseline_cutoff_date"`
	RelistingCutoffDate string  `yaml:"relisting_cutoff_date"`
	FMRMultiple         float64 `yaml:"fmr_multiple"`
	BaseIncreaseCap     float64 `yaml:"base_increase_cap"`
	FurnishedBonus      float64 `yaml:"furnished_bonus"`
}

type SourceConfig struct {
	RentCast RentCastSourceConfig `yaml:"rentcast"`
}

type RentCastSourceConfig struct {
	BaseURL        string               `yaml:"base_url"`
	State          string               `yaml:"state"`
	Status         string               `yaml:"status"`
	Cities         []string             `yaml:"cities"`
	PageLimit      int                  `yaml:"page_limit"`
	MaxPages       int                  `yaml:"max_pages"`
	APIKey         string               `yaml:"api_key"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type ReferenceConfig struct {
	FMRFile string `yaml:"fmr_file"`
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	S3       S3Config       `yaml:"s3"`
}

type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Rules: RulesConfig{
			FMRMultiple:     1.60,
			BaseIncreaseCap: 0.10,
			FurnishedBonus:  0.05,
		},
		Source: SourceConfig{
			RentCast: RentCastSourceConfig{
				Status:    "Active",
				PageLimit: 500,
			},
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Secrets come from the environment when present.
	if v := os.Getenv("RENTCAST_API_KEY"); v != "" {
		config.Source.RentCast.APIKey = strings.TrimSpace(v)
	}
	if config.Storage.Postgres.Enabled {
		if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
			config.Storage.Postgres.Password = strings.TrimSpace(v)
		}
		if v := os.Getenv("POSTGRES_HOST"); v != "" {
			config.Storage.Postgres.Host = strings.TrimSpace(v)
		}
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.RentRadar.Name == "" {
		return fmt.Errorf("rentradar.name is required")
	}
	if cfg.RentRadar.Version == "" {
		return fmt.Errorf("rentradar.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.ViolationBuffer <= 0 {
		return fmt.Errorf("channels.violation_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}

	if cfg.Rules.DeclarationDate == "" {
		return fmt.Errorf("rules.declaration_date is required")
	}
	if _, err := time.Parse("2006-01-02", cfg.Rules.DeclarationDate); err != nil {
		return fmt.Errorf("rules.declaration_date is not a valid date: %w", err)
	}
	for field, value := range map[string]string{
		"rules.baseline_cutoff_date":  cfg.Rules.BaselineCutoffDate,
		"rules.relisting_cutoff_date": cfg.Rules.RelistingCutoffDate,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fmt.Errorf("%s is not a valid date: %w", field, err)
		}
	}
	if cfg.Rules.FMRMultiple <= 0 {
		return fmt.Errorf("rules.fmr_multiple must be greater than 0")
	}
	if cfg.Rules.BaseIncreaseCap <= 0 {
		return fmt.Errorf("rules.base_increase_cap must be greater than 0")
	}
	if cfg.Rules.FurnishedBonus < 0 {
		return fmt.Errorf("rules.furnished_bonus must not be negative")
	}

	if cfg.Source.RentCast.BaseURL == "" {
		return fmt.Errorf("source.rentcast.base_url is required")
	}
	if len(cfg.Source.RentCast.Cities) == 0 {
		return fmt.Errorf("source.rentcast.cities must list at least one city")
	}
	if cfg.Source.RentCast.PageLimit <= 0 {
		return fmt.Errorf("source.rentcast.page_limit must be greater than 0")
	}

	if cfg.Reference.FMRFile == "" {
		return fmt.Errorf("reference.fmr_file is required")
	}

	if cfg.Storage.Postgres.Enabled {
		if cfg.Storage.Postgres.Host == "" || cfg.Storage.Postgres.DBName == "" {
			return fmt.Errorf("storage.postgres.host and storage.postgres.dbname are required when postgres is enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
