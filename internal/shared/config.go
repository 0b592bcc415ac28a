package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv      string        `yaml:"appEnv"`
	HTTPAddr    string        `yaml:"httpAddr"`
	MetricsAddr string        `yaml:"metricsAddr"`
	MySQLDSN    string        `yaml:"mysqlDsn"`
	RedisAddr   string        `yaml:"redisAddr"`
	RedisDB     int           `yaml:"redisDb"`
	RedisPass   string        `yaml:"redisPassword"`
	CacheTTL    time.Duration `yaml:"cacheTtl"`
	Workers     int           `yaml:"workers"`
	Pipelines   []string      `yaml:"pipelines"`

	Warehouse   WarehouseConfig   `yaml:"warehouse"`
	BrightLocal BrightLocalConfig `yaml:"brightLocal"`
	Poll        PollConfig        `yaml:"poll"`
	Analytics   AnalyticsConfig   `yaml:"analytics"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
	Leads       LeadsConfig       `yaml:"leads"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

type WarehouseConfig struct {
	Project         string `yaml:"project"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentialsFile"`
}

type BrightLocalConfig struct {
	BaseURL       string   `yaml:"baseUrl"`
	APIKey        string   `yaml:"apiKey"`
	RPS           int      `yaml:"rps"`
	Country       string   `yaml:"country"`
	ProfileURL    string   `yaml:"profileUrl"`
	PlaceIDs      []string `yaml:"placeIds"`
	ReviewsLimit  string   `yaml:"reviewsLimit"`
	Dataset       string   `yaml:"dataset"`
	SummaryTable  string   `yaml:"summaryTable"`
	DetailedTable string   `yaml:"detailedTable"`
	PlacesTable   string   `yaml:"placesTable"`
}

// PollConfig bounds the batch status loop.
type PollConfig struct {
	Interval          time.Duration `yaml:"interval"`
	Multiplier        float64       `yaml:"multiplier"`
	MaxInterval       time.Duration `yaml:"maxInterval"`
	MaxAttempts       int           `yaml:"maxAttempts"` // 0 = unlimited
	MaxWait           time.Duration `yaml:"maxWait"`     // 0 = unlimited
	CompletedStatuses []string      `yaml:"completedStatuses"`
	FailedStatuses    []string      `yaml:"failedStatuses"`
}

type AnalyticsConfig struct {
	Endpoint    string   `yaml:"endpoint"`
	PropertyIDs []string `yaml:"propertyIds"`
	StartDate   string   `yaml:"startDate"` // YYYY-MM-DD, empty = yesterday
	EndDate     string   `yaml:"endDate"`
	Dataset     string   `yaml:"dataset"`
	Table       string   `yaml:"table"`
}

type ProfilesConfig struct {
	BaseURL          string   `yaml:"baseUrl"`
	LocationIDs      []string `yaml:"locationIds"`
	Metrics          []string `yaml:"metrics"`
	StartDate        string   `yaml:"startDate"`
	EndDate          string   `yaml:"endDate"`
	ClientSecretFile string   `yaml:"clientSecretFile"`
	TokenFile        string   `yaml:"tokenFile"`
	RPS              int      `yaml:"rps"`
	Dataset          string   `yaml:"dataset"`
	Table            string   `yaml:"table"`
}

type LeadsConfig struct {
	URL       string `yaml:"url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	StartDate string `yaml:"startDate"` // RFC3339, empty = yesterday 00:00 UTC
	PerPage   int    `yaml:"perPage"`
	RPS       int    `yaml:"rps"`
	Dataset   string `yaml:"dataset"`
	Table     string `yaml:"table"`
}

type ArchiveConfig struct {
	Bucket string `yaml:"bucket"` // empty disables archiving
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

var DefaultProfileMetrics = []string{
	"BUSINESS_IMPRESSIONS_DESKTOP_MAPS",
	"BUSINESS_IMPRESSIONS_DESKTOP_SEARCH",
	"BUSINESS_IMPRESSIONS_MOBILE_MAPS",
	"BUSINESS_IMPRESSIONS_MOBILE_SEARCH",
	"BUSINESS_CONVERSATIONS",
	"BUSINESS_DIRECTION_REQUESTS",
	"CALL_CLICKS",
	"WEBSITE_CLICKS",
	"BUSINESS_BOOKINGS",
	"BUSINESS_FOOD_ORDERS",
	"BUSINESS_FOOD_MENU_CLICKS",
}

func defaults() Config {
	return Config{
		AppEnv:      "prod",
		HTTPAddr:    ":8080",
		MySQLDSN:    "root:root@tcp(localhost:3306)/mktsync?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		RedisAddr:   "localhost:6379",
		CacheTTL:    5 * time.Minute,
		Workers:     4,
		Pipelines:   []string{"reviews"},
		Warehouse:   WarehouseConfig{Location: "US"},
		BrightLocal: BrightLocalConfig{
			BaseURL:       "https://tools.brightlocal.com/seo-tools/api/v4",
			RPS:           2,
			Country:       "USA",
			ReviewsLimit:  "all",
			Dataset:       "brightlocal",
			SummaryTable:  "reviews_summary",
			DetailedTable: "reviews_detailed",
			PlacesTable:   "place_reviews_detailed",
		},
		Poll: PollConfig{
			Interval:          60 * time.Second,
			Multiplier:        1.5,
			MaxInterval:       10 * time.Minute,
			MaxWait:           2 * time.Hour,
			CompletedStatuses: []string{"Completed"},
			FailedStatuses:    []string{"Failed", "Stopped", "Error"},
		},
		Analytics: AnalyticsConfig{
			Endpoint: "https://analyticsdata.googleapis.com/",
			Dataset:  "google_analytics",
			Table:    "daily_sessions",
		},
		Profiles: ProfilesConfig{
			BaseURL:          "https://businessprofileperformance.googleapis.com/v1",
			Metrics:          DefaultProfileMetrics,
			ClientSecretFile: "credentials.json",
			TokenFile:        "token.json",
			RPS:              5,
			Dataset:          "google_business_profile",
			Table:            "performance_metrics",
		},
		Leads: LeadsConfig{
			URL:     "https://app.whatconverts.com/api/v1/leads",
			PerPage: 2500,
			RPS:     2,
			Dataset: "whatconverts",
			Table:   "leads",
		},
		Archive: ArchiveConfig{Prefix: "raw", Region: "us-east-1"},
	}
}

// Load builds the config from defaults, an optional YAML file named by
// MKT_CONFIG, and environment overrides, in that order.
func Load() Config {
	c := defaults()
	if path := os.Getenv("MKT_CONFIG"); path != "" {
		if err := c.overlayFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config file ignored")
		}
	}
	c.applyEnv()

	if c.BrightLocal.APIKey == "" {
		log.Warn().Msg("BRIGHTLOCAL_API_KEY is empty")
	}
	return c
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshalling into the populated struct keeps defaults for absent keys.
	return yaml.Unmarshal(raw, c)
}

func (c *Config) applyEnv() {
	c.AppEnv = env("APP_ENV", c.AppEnv)
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = env("METRICS_ADDR", c.MetricsAddr)
	c.MySQLDSN = env("MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = env("REDIS_ADDR", c.RedisAddr)
	c.RedisPass = env("REDIS_PASSWORD", c.RedisPass)
	c.RedisDB = atoi("REDIS_DB", c.RedisDB)
	c.CacheTTL = time.Duration(atoi("CACHE_TTL_SECONDS", int(c.CacheTTL.Seconds()))) * time.Second
	c.Workers = atoi("INGEST_WORKERS", c.Workers)
	c.Pipelines = list("INGEST_PIPELINES", c.Pipelines)

	c.Warehouse.Project = env("BIGQUERY_PROJECT", c.Warehouse.Project)
	c.Warehouse.Location = env("BIGQUERY_LOCATION", c.Warehouse.Location)
	c.Warehouse.CredentialsFile = env("GOOGLE_APPLICATION_CREDENTIALS", c.Warehouse.CredentialsFile)

	bl := &c.BrightLocal
	bl.BaseURL = env("BRIGHTLOCAL_BASE_URL", bl.BaseURL)
	bl.APIKey = env("BRIGHTLOCAL_API_KEY", bl.APIKey)
	bl.ProfileURL = env("BRIGHTLOCAL_PROFILE_URL", bl.ProfileURL)
	bl.PlaceIDs = list("BRIGHTLOCAL_PLACE_IDS", bl.PlaceIDs)
	bl.Dataset = env("BRIGHTLOCAL_DATASET", bl.Dataset)

	c.Poll.Interval = dur("POLL_INTERVAL", c.Poll.Interval)
	c.Poll.MaxWait = dur("POLL_MAX_WAIT", c.Poll.MaxWait)
	c.Poll.MaxAttempts = atoi("POLL_MAX_ATTEMPTS", c.Poll.MaxAttempts)

	c.Analytics.PropertyIDs = list("GA_PROPERTY_IDS", c.Analytics.PropertyIDs)
	c.Analytics.StartDate = env("GA_START_DATE", c.Analytics.StartDate)
	c.Analytics.EndDate = env("GA_END_DATE", c.Analytics.EndDate)

	c.Profiles.LocationIDs = list("GBP_LOCATION_IDS", c.Profiles.LocationIDs)
	c.Profiles.StartDate = env("GBP_START_DATE", c.Profiles.StartDate)
	c.Profiles.EndDate = env("GBP_END_DATE", c.Profiles.EndDate)
	c.Profiles.ClientSecretFile = env("GBP_CLIENT_SECRET_FILE", c.Profiles.ClientSecretFile)
	c.Profiles.TokenFile = env("GBP_TOKEN_FILE", c.Profiles.TokenFile)

	c.Leads.URL = env("WHATCONVERTS_URL", c.Leads.URL)
	c.Leads.Username = env("WHATCONVERTS_USERNAME", c.Leads.Username)
	c.Leads.Password = env("WHATCONVERTS_PASSWORD", c.Leads.Password)
	c.Leads.StartDate = env("WHATCONVERTS_START_DATE", c.Leads.StartDate)

	c.Archive.Bucket = env("ARCHIVE_BUCKET", c.Archive.Bucket)
	c.Archive.Region = env("AWS_REGION", c.Archive.Region)
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func dur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// list reads a comma separated value, dropping blanks.
func list(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
