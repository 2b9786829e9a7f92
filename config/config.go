package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all settings read from environment variables.
type Config struct {
	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	ListingURL  string        `envconfig:"LISTING_URL" default:"https://www.ktmb.com.my/TrainTime.html"`
	UserAgent   string        `envconfig:"USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`

	// Comma separated title substrings of the Klang Valley corridors.
	RouteTitles     string `envconfig:"ROUTE_TITLES" default:"TG. MALIM - PELABUHAN KLANG,BATU CAVES - PULAU SEBANG"`
	NorthernKeyword string `envconfig:"NORTHERN_KEYWORD" default:"UTARA"`

	OutputDir    string `envconfig:"OUTPUT_DIR" default:"timetables"`
	PageRange    string `envconfig:"PAGE_RANGE" default:"1-end"`
	TableBackend string `envconfig:"TABLE_BACKEND" default:"layout"`
	TableCommand string `envconfig:"TABLE_COMMAND"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	RunOnStart   bool   `envconfig:"RUN_ON_START" default:"false"`
	Timezone     string `envconfig:"TIMEZONE" default:"Asia/Kuala_Lumpur"`

	RouteMapFile  string        `envconfig:"ROUTE_MAP_FILE"`
	TableCacheTTL time.Duration `envconfig:"TABLE_CACHE_TTL" default:"10m"`

	DBEnabled  bool   `envconfig:"DB_ENABLED" default:"false"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"timetables"`

	// The S3 mirror is disabled while S3Bucket is empty.
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"timetables"`
}

// DSN returns the data source name of the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Titles returns the allow-listed route titles, trimmed and non-empty.
func (c *Config) Titles() []string {
	var titles []string
	for _, t := range strings.Split(c.RouteTitles, ",") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

// MirrorEnabled reports whether written files are copied to S3.
func (c *Config) MirrorEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads the configuration from the environment, honouring a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
