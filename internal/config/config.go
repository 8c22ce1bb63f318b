package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type FetchConfig struct {
	// CutoffWindow bounds how far back a run ingests recalls.
	CutoffWindow time.Duration `mapstructure:"cutoff_window"`
	// SourceTimeout is the hard wall-clock budget per source per tick.
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	// RequestTimeout applies to each upstream HTTP request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// RefreshCron schedules periodic full refreshes.
	RefreshCron string `mapstructure:"refresh_cron"`
	// MaxConsecutiveFailures flags a source for ops attention.
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
	// CacheDir holds the per-source last-known-good snapshots.
	CacheDir string `mapstructure:"cache_dir"`
	// RequestsPerSecond caps the per-source request rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type RemedyConfig struct {
	Cron string `mapstructure:"cron"`
	// MinAge is the minimum gap between detail-page re-fetches per recall.
	MinAge time.Duration `mapstructure:"min_age"`
}

type TemporalConfig struct {
	HostPort string `mapstructure:"host_port"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	BotToken   string `mapstructure:"bot_token"`
}

type PushConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// SiteConfig describes one ad-hoc scraper target.
type SiteConfig struct {
	Name         string `mapstructure:"name"`
	URL          string `mapstructure:"url"`
	ItemSelector string `mapstructure:"item_selector"`
	DateSelector string `mapstructure:"date_selector"`
	DateFormat   string `mapstructure:"date_format"`
}

type SourcesConfig struct {
	CPSCURL      string       `mapstructure:"cpsc_url"`
	FDAFoodURL   string       `mapstructure:"fda_food_url"`
	FDADrugURL   string       `mapstructure:"fda_drug_url"`
	FDADeviceURL string       `mapstructure:"fda_device_url"`
	USDAURL      string       `mapstructure:"usda_url"`
	NHTSAURL     string       `mapstructure:"nhtsa_url"`
	VINDecodeURL string       `mapstructure:"vin_decode_url"`
	VINRecallURL string       `mapstructure:"vin_recall_url"`
	Sites        []SiteConfig `mapstructure:"sites"`
}

type Config struct {
	DatabaseURL string         `mapstructure:"database_url"`
	ServerPort  string         `mapstructure:"server_port"`
	JWTSecret   string         `mapstructure:"jwt_secret"`
	Fetch       FetchConfig    `mapstructure:"fetch"`
	Remedy      RemedyConfig   `mapstructure:"remedy"`
	Temporal    TemporalConfig `mapstructure:"temporal"`
	Email       EmailConfig    `mapstructure:"email"`
	Slack       SlackConfig    `mapstructure:"slack"`
	Push        PushConfig     `mapstructure:"push"`
	Sources     SourcesConfig  `mapstructure:"sources"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.DatabaseURL == "" {
		log.Fatal("database_url must be set in the config file")
	}
	if config.Fetch.CutoffWindow == 0 {
		config.Fetch.CutoffWindow = 30 * 24 * time.Hour
	}
	if config.Fetch.SourceTimeout == 0 {
		config.Fetch.SourceTimeout = 5 * time.Minute
	}
	if config.Fetch.RequestTimeout == 0 {
		config.Fetch.RequestTimeout = 15 * time.Second
	}
	if config.Fetch.RefreshCron == "" {
		config.Fetch.RefreshCron = "@every 60m"
	}
	if config.Fetch.MaxConsecutiveFailures == 0 {
		config.Fetch.MaxConsecutiveFailures = 3
	}
	if config.Fetch.CacheDir == "" {
		config.Fetch.CacheDir = "data"
	}
	if config.Fetch.RequestsPerSecond == 0 {
		config.Fetch.RequestsPerSecond = 2
	}
	if config.Remedy.Cron == "" {
		config.Remedy.Cron = "30 2 * * *"
	}
	if config.Remedy.MinAge == 0 {
		config.Remedy.MinAge = 24 * time.Hour
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.Sources.CPSCURL == "" {
		config.Sources.CPSCURL = "https://www.saferproducts.gov/RestWebServices/Recall"
	}
	if config.Sources.FDAFoodURL == "" {
		config.Sources.FDAFoodURL = "https://api.fda.gov/food/enforcement.json"
	}
	if config.Sources.FDADrugURL == "" {
		config.Sources.FDADrugURL = "https://api.fda.gov/drug/enforcement.json"
	}
	if config.Sources.FDADeviceURL == "" {
		config.Sources.FDADeviceURL = "https://api.fda.gov/device/enforcement.json"
	}
	if config.Sources.USDAURL == "" {
		config.Sources.USDAURL = "https://www.fsis.usda.gov/fsis/api/recall/v/1"
	}
	if config.Sources.NHTSAURL == "" {
		config.Sources.NHTSAURL = "https://api.nhtsa.gov/Recalls/vehicle"
	}
	if config.Sources.VINDecodeURL == "" {
		config.Sources.VINDecodeURL = "https://vpic.nhtsa.dot.gov/api/vehicles/DecodeVinValuesExtended/%s?format=json"
	}
	if config.Sources.VINRecallURL == "" {
		config.Sources.VINRecallURL = "https://api.nhtsa.gov/recalls/recallcampaigns?vin=%s"
	}

	return &config
}
