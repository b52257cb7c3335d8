package cfg

const (
	CommandWorker        = "worker"
	CommandCrawl         = "crawl"
	CommandPredictServer = "predict-server"
	CommandStatus        = "status"
)

type Cfg struct {
	// Selected command and its arguments
	Command  string
	Queues   []string
	Tables   []string
	Schedule bool

	// Database configuration
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Broker configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueuePrefix   string

	// Job delivery policy, seconds
	JobTimeout    int
	MaxRetries    int
	RetryInterval int

	// Application configuration
	TablesDir      string
	ThresholdsFile string
	ModelFile      string
	PredictURL     string
	Port           string
	PredictPort    string
	WorkerCount    int
	CrawlWorkers   int
	APIAccessKey   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
