package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Crawl   CrawlConfig   `yaml:"crawl" mapstructure:"crawl"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	PDF     PDFConfig     `yaml:"pdf" mapstructure:"pdf"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig configures on-disk persistence and snapshot post-processing.
type DataConfig struct {
	Dir          string   `yaml:"dir" mapstructure:"dir"`
	SitesPath    string   `yaml:"sites_path" mapstructure:"sites_path"`
	DatabasePath string   `yaml:"database_path" mapstructure:"database_path"`
	FanOutShared bool     `yaml:"fan_out_shared" mapstructure:"fan_out_shared"`
	SharedLabel  string   `yaml:"shared_label" mapstructure:"shared_label"`
	SharedClones []string `yaml:"shared_clones" mapstructure:"shared_clones"`
}

// HTTPConfig configures outbound fetching.
type HTTPConfig struct {
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestDelay float64 `yaml:"request_delay" mapstructure:"request_delay"` // seconds between fetches to one host
}

// RequestInterval returns the per-host fetch pacing as a duration.
func (h HTTPConfig) RequestInterval() time.Duration {
	return time.Duration(h.RequestDelay * float64(time.Second))
}

// CrawlConfig configures the bounded site crawler.
type CrawlConfig struct {
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	MaxDepth        int      `yaml:"max_depth" mapstructure:"max_depth"`
	ExcludeSegments []string `yaml:"exclude_segments" mapstructure:"exclude_segments"`
}

// GeocodeConfig configures the external geocoder tier.
type GeocodeConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	Delay       float64 `yaml:"delay" mapstructure:"delay"` // seconds between live geocode calls
	CountryCode string  `yaml:"country_code" mapstructure:"country_code"`
	CountryName string  `yaml:"country_name" mapstructure:"country_name"`
	// Bounding box for plausibility checks on geocoder answers.
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// DelayInterval returns the live geocode pacing as a duration.
func (g GeocodeConfig) DelayInterval() time.Duration {
	return time.Duration(g.Delay * float64(time.Second))
}

// PDFConfig configures PDF text extraction and parsing.
type PDFConfig struct {
	Provider      string   `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath string   `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	ListingURL    string   `yaml:"listing_url" mapstructure:"listing_url"`
	SkipKeywords  []string `yaml:"skip_keywords" mapstructure:"skip_keywords"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.sites_path", "")
	v.SetDefault("data.database_path", "data/stopsync.db")
	v.SetDefault("data.fan_out_shared", false)
	v.SetDefault("data.shared_label", "WRO")
	v.SetDefault("data.shared_clones", []string{"WRO1", "WRO2", "WRO3", "WRO4"})
	v.SetDefault("http.user_agent", "NearestStopsBot/1.0 (+https://github.com/nearest-stops/stopsync)")
	v.SetDefault("http.timeout_secs", 25)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.request_delay", 0.7)
	v.SetDefault("crawl.max_pages", 300)
	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.exclude_segments", []string{"/category/", "/kategoria/", "/tag/", "/page/"})
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.delay", 1.1)
	v.SetDefault("geocode.country_code", "pl")
	v.SetDefault("geocode.country_name", "Poland")
	v.SetDefault("geocode.min_lat", 49.0)
	v.SetDefault("geocode.max_lat", 55.0)
	v.SetDefault("geocode.min_lon", 14.0)
	v.SetDefault("geocode.max_lon", 24.2)
	v.SetDefault("pdf.provider", "local")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.listing_url", "https://transport-fc.pl/employee-transport.html")
	v.SetDefault("pdf.skip_keywords", []string{"rozklad", "godz", "legenda"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
