package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"startup-positioning-map/internal/envutil"
)

type ENV string

const (
	Dev        ENV = "development"
	Test       ENV = "test"
	Preview    ENV = "preview"
	Production ENV = "production"
)

// Bootstrap failure policies.
const (
	FailurePolicyFail   = "fail"
	FailurePolicyPrompt = "prompt"
)

type Config struct {
	AppName string
	ENV     ENV
	AppPort int `validate:"min=1,max=65535"`

	LogLevel  string
	LogFormat string `validate:"oneof=console json"`

	Environment EnvironmentConfig
	Pipeline    PipelineConfig
	Stages      StagesConfig
	Dashboard   DashboardConfig
	Clusters    ClustersConfig
	History     HistoryConfig

	// Postgres history backend (optional; enabled only when DBHost + DBName are set).
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     int `validate:"min=1,max=65535"`
	DBName     string

	// Turso remote history backend (optional; enabled only when DSN is set).
	Turso TursoConfig

	// Redis bootstrap lock (optional; enabled only when RedisHost is set).
	RedisUser     string
	RedisPassword string
	RedisHost     string
	RedisPort     int    `validate:"min=1,max=65535"`
	RedisScheme   string `validate:"oneof=redis rediss"`
	RunLock       RunLockConfig

	RabbitMQ RabbitMQConfig
	Inngest  InngestConfig
}

type EnvironmentConfig struct {
	ProjectDir       string `validate:"required"`
	VenvDir          string `validate:"required"`
	RequirementsFile string `validate:"required"`
	PythonCmd        string `validate:"required"`
	RequiredModules  []string
	BuildToolchain   []string
}

type PipelineConfig struct {
	FailurePolicy string `validate:"oneof=fail prompt"`
	FailFast      bool
}

type StagesConfig struct {
	ScrapeScripts []string `validate:"min=1,dive,required"`
	ProcessScript string   `validate:"required"`
	AnalyzeScript string   `validate:"required"`
}

type DashboardConfig struct {
	App  string `validate:"required"`
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`
}

type ClustersConfig struct {
	DataFile  string `validate:"required"`
	NamesFile string
}

type HistoryConfig struct {
	Enabled     bool
	SQLitePath  string
	AutoMigrate bool
}

type TursoConfig struct {
	DSN   string
	Token string
}

type RunLockConfig struct {
	Key  string        `validate:"required"`
	TTL  time.Duration `validate:"gt=0"`
	Wait time.Duration `validate:"gte=0"`
}

type RabbitMQConfig struct {
	URL             string
	Exchange        string
	DeclareTopology bool
	// Queue and Prefetch are used by the history worker.
	Queue    string
	Prefetch int `validate:"gte=0"`
}

type InngestConfig struct {
	AppID      string
	Dev        string
	SigningKey string
	ServeHost  string
	ServePath  string
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "startup-positioning-map")
	v.SetDefault("APP_ENV", string(Dev))
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("PROJECT_DIR", ".")
	v.SetDefault("VENV_DIR", "venv")
	v.SetDefault("REQUIREMENTS_FILE", "requirements.txt")
	v.SetDefault("PYTHON_CMD", "python3")
	v.SetDefault("REQUIRED_MODULES", "requests,pandas,streamlit,sklearn")
	// Empty: pip decides whether a compiler is needed. Set e.g. cc,gcc,clang
	// to require one before installing.
	v.SetDefault("BUILD_TOOLCHAIN", "")

	v.SetDefault("BOOTSTRAP_FAILURE_POLICY", FailurePolicyFail)
	v.SetDefault("PIPELINE_FAIL_FAST", false)

	v.SetDefault("SCRAPE_SCRIPTS", "scraper/crunchbase_scraper.py,scraper/producthunt_scraper.py")
	v.SetDefault("PROCESS_SCRIPT", "analysis/data_processor.py")
	v.SetDefault("ANALYZE_SCRIPT", "analysis/startup_clustering.py")
	v.SetDefault("DASHBOARD_APP", "dashboard/app.py")
	v.SetDefault("DASHBOARD_HOST", "localhost")
	v.SetDefault("DASHBOARD_PORT", 8501)

	v.SetDefault("CLUSTERED_DATA_FILE", "data/clustered_ai_startups.csv")

	v.SetDefault("HISTORY_ENABLED", true)
	v.SetDefault("HISTORY_AUTO_MIGRATE", true)

	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_SCHEME", "redis")
	v.SetDefault("RUN_LOCK_KEY", "startup-positioning-map:bootstrap")
	v.SetDefault("RUN_LOCK_TTL", "30m")
	v.SetDefault("RUN_LOCK_WAIT", "10m")

	v.SetDefault("RABBITMQ_EXCHANGE", "events")
	v.SetDefault("RABBITMQ_QUEUE", "pipeline.history.v1")
	v.SetDefault("RABBITMQ_PREFETCH", 10)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppName: v.GetString("APP_NAME"),
		ENV:     ENV(strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))),
		AppPort: v.GetInt("APP_PORT"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),

		Environment: EnvironmentConfig{
			ProjectDir:       v.GetString("PROJECT_DIR"),
			VenvDir:          v.GetString("VENV_DIR"),
			RequirementsFile: v.GetString("REQUIREMENTS_FILE"),
			PythonCmd:        v.GetString("PYTHON_CMD"),
			RequiredModules:  envutil.SplitList(v.GetString("REQUIRED_MODULES")),
			BuildToolchain:   toolchainList(v.GetString("BUILD_TOOLCHAIN")),
		},
		Pipeline: PipelineConfig{
			FailurePolicy: strings.ToLower(strings.TrimSpace(v.GetString("BOOTSTRAP_FAILURE_POLICY"))),
			FailFast:      v.GetBool("PIPELINE_FAIL_FAST"),
		},
		Stages: StagesConfig{
			ScrapeScripts: envutil.SplitList(v.GetString("SCRAPE_SCRIPTS")),
			ProcessScript: v.GetString("PROCESS_SCRIPT"),
			AnalyzeScript: v.GetString("ANALYZE_SCRIPT"),
		},
		Dashboard: DashboardConfig{
			App:  v.GetString("DASHBOARD_APP"),
			Host: v.GetString("DASHBOARD_HOST"),
			Port: v.GetInt("DASHBOARD_PORT"),
		},
		Clusters: ClustersConfig{
			DataFile:  v.GetString("CLUSTERED_DATA_FILE"),
			NamesFile: v.GetString("CLUSTER_NAMES_FILE"),
		},
		History: HistoryConfig{
			Enabled:     v.GetBool("HISTORY_ENABLED"),
			SQLitePath:  v.GetString("HISTORY_SQLITE_PATH"),
			AutoMigrate: v.GetBool("HISTORY_AUTO_MIGRATE"),
		},

		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetInt("DB_PORT"),
		DBName:     v.GetString("DB_NAME"),

		Turso: TursoConfig{
			DSN:   v.GetString("TURSO_DATABASE_URL"),
			Token: v.GetString("TURSO_AUTH_TOKEN"),
		},

		RedisUser:     v.GetString("REDIS_USER"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetInt("REDIS_PORT"),
		RedisScheme:   strings.ToLower(strings.TrimSpace(v.GetString("REDIS_SCHEME"))),
		RunLock: RunLockConfig{
			Key:  v.GetString("RUN_LOCK_KEY"),
			TTL:  v.GetDuration("RUN_LOCK_TTL"),
			Wait: v.GetDuration("RUN_LOCK_WAIT"),
		},

		RabbitMQ: RabbitMQConfig{
			URL:             v.GetString("RABBITMQ_URL"),
			Exchange:        v.GetString("RABBITMQ_EXCHANGE"),
			DeclareTopology: v.GetBool("RABBITMQ_DECLARE_TOPOLOGY"),
			Queue:           v.GetString("RABBITMQ_QUEUE"),
			Prefetch:        v.GetInt("RABBITMQ_PREFETCH"),
		},
		Inngest: InngestConfig{
			AppID:      v.GetString("INNGEST_APP_ID"),
			Dev:        v.GetString("INNGEST_DEV"),
			SigningKey: v.GetString("INNGEST_SIGNING_KEY"),
			ServeHost:  v.GetString("INNGEST_SERVE_HOST"),
			ServePath:  v.GetString("INNGEST_SERVE_PATH"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ValidationError{Err: err}
	}

	return cfg, nil
}

// ValidationError reports configuration that failed struct validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// toolchainList returns nil for an empty value or "none", which disables the
// native toolchain check.
func toolchainList(raw string) []string {
	list := envutil.SplitList(raw)
	if len(list) == 1 && strings.EqualFold(list[0], "none") {
		return nil
	}
	return list
}
