// Package config provides the configuration system for shopsync.
// A single Config structure carries every setting, organized into logical
// sections:
//   - Shop: store domain, Admin API credentials and API versions
//   - Partner: Partner API organization and token
//   - Extraction: page sizes, fan-out pacing and optional loaders
//   - Backfill: weekly window range
//   - Destination: where tables are landed and how
//   - Timeouts, Reliability, Observability
//
// Example usage:
//
//	cfg, err := config.Load("shopsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	creds := config.NewCredentialSource(cfg.Shop, nil)
package config

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout accepted for start dates in configuration and flags
const DateLayout = "2006-01-02"

// Config is the complete shopsync configuration
type Config struct {
	Shop          ShopConfig          `yaml:"shop" mapstructure:"shop"`
	Partner       PartnerConfig       `yaml:"partner" mapstructure:"partner"`
	Extraction    ExtractionConfig    `yaml:"extraction" mapstructure:"extraction"`
	Backfill      BackfillConfig      `yaml:"backfill" mapstructure:"backfill"`
	Destination   DestinationConfig   `yaml:"destination" mapstructure:"destination"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" mapstructure:"timeouts"`
	Reliability   ReliabilityConfig   `yaml:"reliability" mapstructure:"reliability"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ShopConfig identifies the store and how to authenticate against it
type ShopConfig struct {
	// URL is the shop domain, with or without protocol (SHOPIFY_SHOP_URL)
	URL string `yaml:"url" mapstructure:"url"`
	// AccessToken is an Admin API access token (SHOPIFY_ACCESS_TOKEN)
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	// ClientID and ClientSecret enable the client credentials grant when no
	// access token is configured
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	// TokenURL overrides https://{shop}/admin/oauth/access_token
	TokenURL string `yaml:"token_url,omitempty" mapstructure:"token_url"`
	// APIVersion is the Admin API version used by most resources
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
	// B2BAPIVersion is the Admin API version used by the B2B resources
	B2BAPIVersion string `yaml:"b2b_api_version" mapstructure:"b2b_api_version"`
}

// PartnerConfig configures the Partner API transactions load
type PartnerConfig struct {
	OrganizationID string `yaml:"organization_id" mapstructure:"organization_id"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	APIVersion     string `yaml:"api_version" mapstructure:"api_version"`
	// BaseURL overrides https://partners.shopify.com
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Dataset string `yaml:"dataset" mapstructure:"dataset"`
}

// ExtractionConfig controls how resources are paged and which optional
// loaders run
type ExtractionConfig struct {
	// PageSize is the GraphQL "first" argument
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
	// RESTPageSize is the REST "limit" parameter
	RESTPageSize int `yaml:"rest_page_size" mapstructure:"rest_page_size"`
	// FanOutDelay is the pause between per-item secondary requests
	FanOutDelay time.Duration `yaml:"fanout_delay" mapstructure:"fanout_delay"`
	// CoreResources are the built-in entities loaded before supplemental loaders
	CoreResources []string `yaml:"core_resources" mapstructure:"core_resources"`
	// StartDate is the updated_at_min for a full load
	StartDate string `yaml:"start_date" mapstructure:"start_date"`
	// IncludeProductsMetafields enables the per-product metafield fan-out
	IncludeProductsMetafields bool `yaml:"include_products_metafields" mapstructure:"include_products_metafields"`
	// IncludeCompanyLocations enables the b2b_company_locations loader
	IncludeCompanyLocations bool `yaml:"include_company_locations" mapstructure:"include_company_locations"`
}

// BackfillConfig controls the windowed historical load
type BackfillConfig struct {
	StartDate string        `yaml:"start_date" mapstructure:"start_date"`
	Window    time.Duration `yaml:"window" mapstructure:"window"`
}

// DestinationConfig selects and configures the destination connector.
// Only the fields relevant to Type are read.
type DestinationConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
	// DSN is used by postgres, mysql, snowflake and mongodb
	DSN string `yaml:"dsn" mapstructure:"dsn"`
	// Schema is the postgres schema, snowflake schema or mongodb database
	Schema string `yaml:"schema" mapstructure:"schema"`
	// Path is the sqlite database file or the files destination directory
	Path string `yaml:"path" mapstructure:"path"`

	// BigQuery
	Project         string `yaml:"project" mapstructure:"project"`
	Dataset         string `yaml:"dataset" mapstructure:"dataset"`
	Location        string `yaml:"location" mapstructure:"location"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`

	// Object stores
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// Format and Compression apply to files, s3 and gcs
	Format      string `yaml:"format" mapstructure:"format"`
	Compression string `yaml:"compression" mapstructure:"compression"`

	// BatchSize caps rows per INSERT statement for SQL destinations
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// TimeoutConfig contains per-request timeouts. There is no budget spanning a
// whole resource.
type TimeoutConfig struct {
	// Request is the default timeout for REST and GraphQL requests
	Request time.Duration `yaml:"request" mapstructure:"request"`
	// GraphQL is used for the heavier inventory queries
	GraphQL time.Duration `yaml:"graphql" mapstructure:"graphql"`
	// FanOutItem is used for per-item secondary requests
	FanOutItem time.Duration `yaml:"fanout_item" mapstructure:"fanout_item"`
	// Connection is the dial and destination connect timeout
	Connection time.Duration `yaml:"connection" mapstructure:"connection"`
	// Run bounds an entire CLI invocation (0 = unbounded)
	Run time.Duration `yaml:"run" mapstructure:"run"`
}

// ReliabilityConfig contains request pacing and exit behavior
type ReliabilityConfig struct {
	// RateLimitPerSec limits API requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// RateBurst is the token bucket capacity
	RateBurst int `yaml:"rate_burst" mapstructure:"rate_burst"`
	// FailOnError makes the CLI exit non-zero when any loader failed
	FailOnError bool `yaml:"fail_on_error" mapstructure:"fail_on_error"`
}

// ObservabilityConfig contains logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel          string  `yaml:"log_level" mapstructure:"log_level"`
	LogEncoding       string  `yaml:"log_encoding" mapstructure:"log_encoding"`
	Development       bool    `yaml:"development" mapstructure:"development"`
	EnableMetrics     bool    `yaml:"enable_metrics" mapstructure:"enable_metrics"`
	PushGateway       string  `yaml:"push_gateway" mapstructure:"push_gateway"`
	EnableTracing     bool    `yaml:"enable_tracing" mapstructure:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
}

// DefaultSchema is the schema (dataset, database) tables land in
const DefaultSchema = "shopify_dlt_data"

// NewConfig creates a Config with the defaults the pipeline has always run with
func NewConfig() *Config {
	return &Config{
		Shop: ShopConfig{
			APIVersion:    "2024-01",
			B2BAPIVersion: "2025-10",
		},
		Partner: PartnerConfig{
			APIVersion: "2024-01",
			Dataset:    "shopify_partner_data",
		},
		Extraction: ExtractionConfig{
			PageSize:      100,
			RESTPageSize:  250,
			FanOutDelay:   time.Second,
			CoreResources: []string{"orders", "products", "customers"},
			StartDate:     "2025-10-10",
		},
		Backfill: BackfillConfig{
			StartDate: "2025-10-01",
			Window:    7 * 24 * time.Hour,
		},
		Destination: DestinationConfig{
			Type:        "postgres",
			Schema:      DefaultSchema,
			Path:        "shopsync-data",
			Format:      "jsonl",
			Compression: "none",
			BatchSize:   500,
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			GraphQL:    60 * time.Second,
			FanOutItem: 20 * time.Second,
			Connection: 10 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RateLimitPerSec: 0,
			RateBurst:       1,
			FailOnError:     true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "console",
			EnableMetrics:     true,
			TracingSampleRate: 1.0,
		},
	}
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Extraction.PageSize <= 0 || c.Extraction.PageSize > 250 {
		return fmt.Errorf("extraction.page_size must be between 1 and 250")
	}
	if c.Extraction.RESTPageSize <= 0 || c.Extraction.RESTPageSize > 250 {
		return fmt.Errorf("extraction.rest_page_size must be between 1 and 250")
	}
	if c.Extraction.FanOutDelay < 0 {
		return fmt.Errorf("extraction.fanout_delay cannot be negative")
	}
	if _, err := c.FullLoadStart(); err != nil {
		return err
	}
	if _, err := c.BackfillStart(); err != nil {
		return err
	}
	if c.Backfill.Window <= 0 {
		return fmt.Errorf("backfill.window must be positive")
	}
	if c.Destination.Type == "" {
		return fmt.Errorf("destination.type is required")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec cannot be negative")
	}
	if c.Timeouts.Request <= 0 {
		return fmt.Errorf("timeouts.request must be positive")
	}
	return nil
}

// FullLoadStart parses Extraction.StartDate
func (c *Config) FullLoadStart() (time.Time, error) {
	return ParseDate("extraction.start_date", c.Extraction.StartDate)
}

// BackfillStart parses Backfill.StartDate
func (c *Config) BackfillStart() (time.Time, error) {
	return ParseDate("backfill.start_date", c.Backfill.StartDate)
}

// ParseDate accepts either a YYYY-MM-DD date (UTC midnight) or an RFC 3339 timestamp
func ParseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", field, value)
	}
	return t.UTC(), nil
}

// Redacted returns a copy with secrets masked, suitable for printing
func (c *Config) Redacted() *Config {
	out := *c
	out.Extraction.CoreResources = append([]string(nil), c.Extraction.CoreResources...)
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out.Shop.AccessToken = mask(c.Shop.AccessToken)
	out.Shop.ClientSecret = mask(c.Shop.ClientSecret)
	out.Partner.AccessToken = mask(c.Partner.AccessToken)
	out.Destination.DSN = mask(c.Destination.DSN)
	return &out
}
