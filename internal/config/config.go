package config

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/shouni/go-photo-sketcher/pkg/generator"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultImageModel      = "gemini-2.5-flash-image"
	DefaultListenAddr      = ":8080"
	DefaultRequestTimeout  = 2 * time.Minute
	DefaultRateInterval    = 2 * time.Second
	DefaultRateBurst       = 2
	DefaultCacheExpiration = 30 * time.Minute
	DefaultSessionTTL      = 2 * time.Hour
	DefaultOutputDir       = "output"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStyleSuffix     = generator.DefaultStyleSuffix
)

// Config はアプリケーション全体の環境設定（APIキーや生成設定）を保持する構造体なのだ。
type Config struct {
	GeminiAPIKey    string
	ImageModel      string
	StyleSuffix     string
	ListenAddr      string
	OutputDir       string
	RequestTimeout  time.Duration
	RateInterval    time.Duration
	CacheExpiration time.Duration
	SessionTTL      time.Duration
	Seed            *int32

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	cfg := &Config{
		GeminiAPIKey:    envutil.GetEnv("GEMINI_API_KEY", ""),
		ImageModel:      envutil.GetEnv("SKETCH_IMAGE_MODEL", DefaultImageModel),
		StyleSuffix:     envutil.GetEnv("SKETCH_STYLE_SUFFIX", DefaultStyleSuffix),
		ListenAddr:      envutil.GetEnv("SKETCH_LISTEN_ADDR", DefaultListenAddr),
		OutputDir:       envutil.GetEnv("SKETCH_OUTPUT_DIR", DefaultOutputDir),
		RequestTimeout:  durationEnv("SKETCH_REQUEST_TIMEOUT", DefaultRequestTimeout),
		RateInterval:    durationEnv("SKETCH_RATE_INTERVAL", DefaultRateInterval),
		CacheExpiration: durationEnv("SKETCH_CACHE_TTL", DefaultCacheExpiration),
		SessionTTL:      durationEnv("SKETCH_SESSION_TTL", DefaultSessionTTL),
		Seed:            seedEnv("SKETCH_SEED"),
	}
	return cfg
}

// Apply はCLIフラグで明示的に指定された値を設定に反映するのだ。
func (c *Config) Apply(opts GenerateOptions) {
	c.Options = opts
	if opts.ImageModel != "" {
		c.ImageModel = opts.ImageModel
	}
	if opts.ListenAddr != "" {
		c.ListenAddr = opts.ListenAddr
	}
	if opts.OutputDir != "" {
		c.OutputDir = opts.OutputDir
	}
	if opts.RequestTimeout > 0 {
		c.RequestTimeout = opts.RequestTimeout
	}
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	ImageModel     string        // --image-model
	ListenAddr     string        // --addr
	OutputDir      string        // --output-dir
	RequestTimeout time.Duration // --timeout
	Verbose        bool          // --verbose
}

// durationEnv は time.ParseDuration 形式の環境変数を読み込みます。不正な値は警告して既定値を使うのだ。
func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("環境変数の値が不正なので既定値を使うのだ", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

// seedEnv は任意のシード値を読み込みます。未設定なら nil なのだ。
func seedEnv(key string) *int32 {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		slog.Warn("シード値が不正なので無視するのだ", "key", key, "value", raw)
		return nil
	}
	seed := int32(v)
	return &seed
}
