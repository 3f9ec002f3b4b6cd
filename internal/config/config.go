package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	PublicURL    string
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string

	// MaxDeliveries caps how often a failing stream message is retried.
	MaxDeliveries int64
}

type StorageConfig struct {
	Endpoint  string
	PublicURL string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type UploadConfig struct {
	Dir           string
	MaxSize       int64
	FFmpegPath    string
	ThumbnailSize int
}

type SecurityConfig struct {
	JWTSecret       string
	JWTTTL          time.Duration
	TokenTTL        time.Duration
	RateLimit       float64
	RateBurst       int
	CallbackMaxSkew time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

type PipelineConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

type NotificationConfig struct {
	Window        time.Duration
	Retention     time.Duration
	BufferSize    int
	CleanupCron   string
	ClaimInterval time.Duration
}

type WebConfig struct {
	Host          string
	Port          int
	APIURL        string
	SessionSecret string
	SessionMaxAge time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Upload           UploadConfig
	Security         SecurityConfig
	SMTP             SMTPConfig
	Pipeline         PipelineConfig
	Notifications    NotificationConfig
	Web              WebConfig
	FrontendURL      string
	AllowCORSOrigins []string
}

// Load reads .env, config.yaml and SCANHUB_* environment variables, in that
// order of increasing precedence.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("SCANHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ValidateAPI reports every missing key the API server needs.
func (c *AppConfig) ValidateAPI() error {
	return requireAll(map[string]string{
		"postgres.dsn":       c.Postgres.DSN,
		"security.jwtsecret": c.Security.JWTSecret,
		"smtp.host":          c.SMTP.Host,
		"smtp.username":      c.SMTP.Username,
		"smtp.password":      c.SMTP.Password,
		"smtp.from":          c.SMTP.From,
		"storage.endpoint":   c.Storage.Endpoint,
		"storage.accesskey":  c.Storage.AccessKey,
		"storage.secretkey":  c.Storage.SecretKey,
		"storage.bucket":     c.Storage.Bucket,
		"pipeline.secret":    c.Pipeline.Secret,
	})
}

func (c *AppConfig) ValidateWorker() error {
	return requireAll(map[string]string{
		"postgres.dsn":    c.Postgres.DSN,
		"pipeline.url":    c.Pipeline.URL,
		"pipeline.secret": c.Pipeline.Secret,
	})
}

func (c *AppConfig) ValidateWeb() error {
	return requireAll(map[string]string{
		"web.apiurl":        c.Web.APIURL,
		"web.sessionsecret": c.Web.SessionSecret,
	})
}

func requireAll(values map[string]string) error {
	var missing []string
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.New("missing required config: " + strings.Join(missing, ", "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("frontendurl", "http://localhost:3000")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.publicurl", "http://localhost:8080")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "scans:process")
	v.SetDefault("redis.group", "scan-workers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.maxdeliveries", 5)

	v.SetDefault("storage.bucket", "scanhub-files")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("upload.maxsize", 2<<30)
	v.SetDefault("upload.ffmpegpath", "ffmpeg")
	v.SetDefault("upload.thumbnailsize", 480)

	v.SetDefault("security.jwtttl", "168h")
	v.SetDefault("security.tokenttl", "24h")
	v.SetDefault("security.ratelimit", 10)
	v.SetDefault("security.rateburst", 30)
	v.SetDefault("security.callbackmaxskew", "5m")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.tls", true)

	v.SetDefault("pipeline.timeout", "30s")

	v.SetDefault("notifications.window", "168h") // 7 days
	v.SetDefault("notifications.retention", "720h")
	v.SetDefault("notifications.buffersize", 256)
	v.SetDefault("notifications.cleanupcron", "0 0 3 * * *")
	v.SetDefault("notifications.claiminterval", "30s")

	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 3000)
	v.SetDefault("web.sessionmaxage", "168h")

	// viper only maps env vars onto keys it already knows about.
	for _, key := range []string{
		"postgres.dsn", "redis.password", "storage.endpoint", "storage.publicurl",
		"storage.accesskey", "storage.secretkey", "security.jwtsecret",
		"smtp.host", "smtp.username", "smtp.password", "smtp.from",
		"pipeline.url", "pipeline.secret", "web.apiurl", "web.sessionsecret",
		"allowcorsorigins",
	} {
		v.SetDefault(key, "")
	}
}
