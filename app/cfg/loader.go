package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type workerCommand struct {
	Args struct {
		Queues []string `positional-arg-name:"queue" description:"Queues to consume (ingest, extract, classify)"`
	} `positional-args:"yes"`
}

type crawlCommand struct {
	Schedule bool `long:"schedule" description:"Keep running and re-crawl tables on their cron schedule"`
	Args     struct {
		Tables []string `positional-arg-name:"table" description:"Tables to crawl (default: all enabled)"`
	} `positional-args:"yes"`
}

type predictServerCommand struct {
	Port string `long:"predict-port" env:"PREDICT_PORT" default:"8090" description:"Prediction service port"`
}

type statusCommand struct{}

type rawCfg struct {
	// Database configuration
	DBDriver   string `long:"db-driver" env:"DB_DRIVER" default:"postgres" choice:"postgres" choice:"sqlite" description:"Database driver"`
	DBHost     string `long:"db-host" env:"DB_HOST" default:"localhost" description:"Database host"`
	DBPort     string `long:"db-port" env:"DB_PORT" default:"5432" description:"Database port"`
	DBUser     string `long:"db-user" env:"DB_USER" default:"comb_user" description:"Database user"`
	DBPassword string `long:"db-password" env:"DB_PASSWORD" default:"comb_password" description:"Database password"`
	DBName     string `long:"db-name" env:"DB_NAME" default:"product_comb" description:"Database name"`
	SQLitePath string `long:"sqlite-path" env:"SQLITE_PATH" default:"./product-comb.db" description:"Database file when the sqlite driver is used"`

	// Broker configuration
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database"`
	QueuePrefix   string `long:"queue-prefix" env:"QUEUE_PREFIX" default:"product-comb" description:"Key prefix of the queue streams"`

	// Job delivery policy
	JobTimeout    int `long:"job-timeout" env:"JOB_TIMEOUT" default:"10" description:"Job timeout in seconds"`
	MaxRetries    int `long:"max-retries" env:"MAX_RETRIES" default:"5" description:"Retries before a job is dead-lettered"`
	RetryInterval int `long:"retry-interval" env:"RETRY_INTERVAL" default:"30" description:"Seconds between retries"`

	// Application configuration
	TablesDir      string `long:"tables-dir" env:"TABLES_DIR" default:"./tables" description:"Directory containing table configuration files"`
	ThresholdsFile string `long:"thresholds-file" env:"THRESHOLDS_FILE" default:"./thresholds.yml" description:"Threshold configuration file"`
	ModelFile      string `long:"model-file" env:"MODEL_FILE" default:"./model.yml" description:"Keyword model served by predict-server"`
	PredictURL     string `long:"predict-url" env:"PREDICT_URL" default:"http://localhost:8090" description:"Base URL of the prediction service"`
	Port           string `long:"port" env:"PORT" default:"8080" description:"Admin HTTP server port"`
	WorkerCount    int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Workers per queue"`
	CrawlWorkers   int    `long:"crawl-workers" env:"CRAWL_WORKERS" default:"4" description:"Concurrent fetches per table"`
	APIAccessKey   string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"product-comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Berlin)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Worker        workerCommand        `command:"worker" description:"Consume pipeline queues"`
	Crawl         crawlCommand         `command:"crawl" description:"Crawl tables and enqueue fetched pages"`
	PredictServer predictServerCommand `command:"predict-server" description:"Run the keyword prediction service"`
	Status        statusCommand        `command:"status" description:"Print queue statistics"`
}

var globalCfg *Cfg

// Load reads a .env file when present, then parses os.Args and the environment.
func Load() (*Cfg, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Command:        parser.Active.Name,
		DBDriver:       raw.DBDriver,
		DBHost:         raw.DBHost,
		DBPort:         raw.DBPort,
		DBUser:         raw.DBUser,
		DBPassword:     raw.DBPassword,
		DBName:         raw.DBName,
		SQLitePath:     raw.SQLitePath,
		RedisAddr:      raw.RedisAddr,
		RedisPassword:  raw.RedisPassword,
		RedisDB:        raw.RedisDB,
		QueuePrefix:    raw.QueuePrefix,
		JobTimeout:     raw.JobTimeout,
		MaxRetries:     raw.MaxRetries,
		RetryInterval:  raw.RetryInterval,
		TablesDir:      raw.TablesDir,
		ThresholdsFile: raw.ThresholdsFile,
		ModelFile:      raw.ModelFile,
		PredictURL:     raw.PredictURL,
		Port:           raw.Port,
		PredictPort:    raw.PredictServer.Port,
		WorkerCount:    raw.WorkerCount,
		CrawlWorkers:   raw.CrawlWorkers,
		APIAccessKey:   raw.APIAccessKey,
		UserAgent:      raw.UserAgent,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	switch cfg.Command {
	case CommandWorker:
		cfg.Queues = raw.Worker.Args.Queues
	case CommandCrawl:
		cfg.Tables = raw.Crawl.Args.Tables
		cfg.Schedule = raw.Crawl.Schedule
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.CrawlWorkers < 1 {
		return fmt.Errorf("crawl workers must be positive, got %d", c.CrawlWorkers)
	}
	if c.JobTimeout < 1 || c.RetryInterval < 0 || c.MaxRetries < 0 {
		return fmt.Errorf("invalid job policy: timeout=%d max_retries=%d retry_interval=%d", c.JobTimeout, c.MaxRetries, c.RetryInterval)
	}
	return nil
}

// DatabaseDSN returns the data source name for the configured driver.
func (c *Cfg) DatabaseDSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func (c *Cfg) JobTimeoutDuration() time.Duration {
	return time.Duration(c.JobTimeout) * time.Second
}

func (c *Cfg) RetryIntervalDuration() time.Duration {
	return time.Duration(c.RetryInterval) * time.Second
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
