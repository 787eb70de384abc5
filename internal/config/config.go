package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Session    SessionConfig    `mapstructure:"session"`
	AI         AIConfig         `mapstructure:"ai"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type StoreConfig struct {
	Dir            string        `mapstructure:"dir"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

type SessionConfig struct {
	// Secret signs the session cookie (HMAC). Must be set in production.
	Secret string `mapstructure:"secret"`
	// Backend selects the session store implementation: "memory" or "mongo".
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
}

type MongoConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

type AIConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	Model        string `mapstructure:"model"`
	// UseMock forces the mock analyzer even when an API key is configured.
	UseMock bool `mapstructure:"use_mock"`
}

type DownloaderConfig struct {
	YtdlpPath string `mapstructure:"ytdlp_path"`
	// CookieFile, when set, is passed to yt-dlp via --cookies. When empty
	// and CookieBrowsers is non-empty, --cookies-from-browser is tried for
	// each listed browser until one download succeeds.
	CookieFile     string   `mapstructure:"cookie_file"`
	CookieBrowsers []string `mapstructure:"cookie_browsers"`
	// TranscriptLanguages is the preferred caption language order.
	TranscriptLanguages []string      `mapstructure:"transcript_languages"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
	DownloadTimeout     time.Duration `mapstructure:"download_timeout"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Production bool   `mapstructure:"production"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A local .env is convenient in development; absence is not an error.
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	// Nested keys map to env vars as server.address -> SERVER_ADDRESS.
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("store.dir", "downloads")
	viper.SetDefault("store.max_upload_bytes", int64(500*1024*1024))
	viper.SetDefault("store.sweep_interval", "5m")
	viper.SetDefault("store.max_age", "30m")
	viper.SetDefault("session.backend", "memory")
	viper.SetDefault("session.secret", "dev-only-insecure-secret")
	viper.SetDefault("session.ttl", "24h")
	viper.SetDefault("session.mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("session.mongo.name", "video_backend")
	viper.SetDefault("ai.model", "gemini-1.5-flash")
	viper.SetDefault("ai.use_mock", false)
	viper.SetDefault("downloader.ytdlp_path", "yt-dlp")
	viper.SetDefault("downloader.transcript_languages", []string{"pt", "en", "es"})
	viper.SetDefault("downloader.probe_timeout", "30s")
	viper.SetDefault("downloader.download_timeout", "300s")
	viper.SetDefault("log.file", "video-backend.log")
	viper.SetDefault("log.production", false)

	err = viper.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file is optional; env vars and defaults carry the rest.
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
