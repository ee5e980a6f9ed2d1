package lottery

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 运行配置, 由 ConfigManager 加载后显式传给各组件
type Config struct {
	// 开奖记录存储
	Store *StoreConfig `mapstructure:"store"`

	// 外部开奖数据源
	Source *SourceConfig `mapstructure:"source"`

	// 同步器
	Sync *SyncConfig `mapstructure:"sync"`

	// Redis 配置
	Redis *RedisConfig `mapstructure:"redis"`

	// 熔断器配置
	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	// 彩票图片识别
	OCR *OCRConfig `mapstructure:"ocr"`

	// Web 服务
	Web *WebConfig `mapstructure:"web"`

	// 日志
	Log *LogConfig `mapstructure:"log"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Store == nil || c.Source == nil || c.Sync == nil {
		return wrapError(ErrConfigInvalid, nil, "store, source and sync sections are required")
	}

	switch c.Store.Backend {
	case StoreBackendCSV:
		if c.Store.CSVPath == "" {
			return wrapError(ErrConfigInvalid, nil, "store.csv_path is required")
		}
	case StoreBackendPostgres:
		if c.Store.PostgresDSN == "" {
			return wrapError(ErrConfigInvalid, nil, "store.postgres_dsn is required")
		}
	default:
		return wrapError(ErrConfigInvalid, nil, fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}
	if c.Store.HistoryFloor < 0 {
		return wrapError(ErrConfigInvalid, nil, "store.history_floor cannot be negative")
	}

	if c.Source.BaseURL == "" {
		return wrapError(ErrConfigInvalid, nil, "source.base_url is required")
	}
	if c.Source.Timeout <= 0 {
		return wrapError(ErrConfigInvalid, nil, "source.timeout must be positive")
	}
	if c.Source.RetryAttempts < 0 || c.Source.RetryAttempts > MaxRetryAttempts || c.Source.RetryInterval < 0 {
		return ErrInvalidRetry
	}

	if c.Sync.MinRequestDelay < 0 {
		return wrapError(ErrConfigInvalid, nil, "sync.min_request_delay cannot be negative")
	}
	if c.Sync.DegradedScanLimit < 0 || c.Sync.DegradedScanLimit > MaxDegradedScanLimit {
		return wrapError(ErrConfigInvalid, nil,
			fmt.Sprintf("sync.degraded_scan_limit must be between 0 and %d", MaxDegradedScanLimit))
	}
	if c.Sync.LockTimeout < MinLockTimeout || c.Sync.LockTimeout > MaxLockTimeout {
		return ErrInvalidLockTimeout
	}

	// 验证 Redis 配置
	if c.Redis != nil && c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return wrapError(ErrConfigInvalid, nil, "redis address is required")
		}
		if c.Redis.PoolSize <= 0 {
			return wrapError(ErrConfigInvalid, nil, "redis pool size must be positive")
		}
	}

	if c.OCR != nil {
		switch c.OCR.Provider {
		case OCRProviderTesseract, OCRProviderGemini, OCRProviderNone:
		default:
			return wrapError(ErrConfigInvalid, nil, fmt.Sprintf("unknown ocr.provider %q", c.OCR.Provider))
		}
		if c.OCR.Provider == OCRProviderGemini && c.OCR.GeminiAPIKey == "" {
			return wrapError(ErrConfigInvalid, nil, "ocr.gemini_api_key is required for the gemini provider")
		}
	}

	return nil
}

// StoreConfig 存储配置
type StoreConfig struct {
	Backend      string `mapstructure:"backend"`
	CSVPath      string `mapstructure:"csv_path"`
	PostgresDSN  string `mapstructure:"postgres_dsn"`
	HistoryFloor int    `mapstructure:"history_floor"`
	Debug        bool   `mapstructure:"debug"`
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:      DefaultStoreBackend,
		CSVPath:      DefaultCSVPath,
		HistoryFloor: DefaultHistoryFloor,
	}
}

// SourceConfig 数据源配置
type SourceConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// DefaultSourceConfig 返回默认数据源配置
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		BaseURL:       DefaultSourceBaseURL,
		UserAgent:     DefaultSourceUserAgent,
		Timeout:       DefaultSourceTimeout,
		RetryAttempts: DefaultRetryAttempts,
		RetryInterval: DefaultRetryInterval,
	}
}

// SyncConfig 同步器配置
type SyncConfig struct {
	// 相邻两次请求之间的最小间隔
	MinRequestDelay time.Duration `mapstructure:"min_request_delay"`

	// 无法获取最新期号时最多向前扫描的期数, 0 表示关闭
	DegradedScanLimit int `mapstructure:"degraded_scan_limit"`

	// 同步锁过期时间
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// 写入失败的批次在 Redis 中保留的时间
	PendingTTL time.Duration `mapstructure:"pending_ttl"`

	RetryAttempts int           `mapstructure:"-"`
	RetryInterval time.Duration `mapstructure:"-"`
}

// DefaultSyncConfig 返回默认同步配置
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		MinRequestDelay:   DefaultMinRequestDelay,
		DegradedScanLimit: DefaultDegradedScanLimit,
		LockTimeout:       DefaultLockTimeout,
		PendingTTL:        DefaultPendingTTL,
		RetryAttempts:     DefaultRetryAttempts,
		RetryInterval:     DefaultRetryInterval,
	}
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// 连接配置
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 连接池配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// 超时配置
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// DefaultRedisConfig 返回默认的Redis配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

const (
	OCRProviderTesseract = "tesseract"
	OCRProviderGemini    = "gemini"
	OCRProviderNone      = "none"
)

// OCRConfig 彩票图片识别配置
type OCRConfig struct {
	Provider      string        `mapstructure:"provider"`
	Threshold     uint8         `mapstructure:"threshold"`
	TesseractPath string        `mapstructure:"tesseract_path"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// DefaultOCRConfig 返回默认识别配置
func DefaultOCRConfig() *OCRConfig {
	return &OCRConfig{
		Provider:      OCRProviderTesseract,
		Threshold:     150,
		TesseractPath: "tesseract",
		GeminiModel:   "gemini-1.5-flash",
		Timeout:       30 * time.Second,
	}
}

// WebConfig Web 服务配置
type WebConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	EnableSync     bool          `mapstructure:"enable_sync"`
}

// DefaultWebConfig 返回默认 Web 配置
func DefaultWebConfig() *WebConfig {
	return &WebConfig{
		Addr:           ":5001",
		MaxUploadBytes: 16 << 20,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   2 * time.Minute,
		EnableSync:     true,
	}
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Encoding    string `mapstructure:"encoding"`
	Development bool   `mapstructure:"development"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: "info", Encoding: "json"}
}

// DefaultConfig 返回全部默认配置
func DefaultConfig() *Config {
	return &Config{
		Store:          DefaultStoreConfig(),
		Source:         DefaultSourceConfig(),
		Sync:           DefaultSyncConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		OCR:            DefaultOCRConfig(),
		Web:            DefaultWebConfig(),
		Log:            DefaultLogConfig(),
	}
}

// ConfigManager 配置管理器
type ConfigManager struct {
	viper   *viper.Viper
	envFile string

	mu     sync.RWMutex
	config *Config
}

// NewConfigManager 创建配置管理器
func NewConfigManager() *ConfigManager {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/toto")
	v.AddConfigPath("$HOME/.toto")

	// 设置环境变量前缀
	v.SetEnvPrefix("TOTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigManager{viper: v, envFile: ".env"}
}

// SetConfigFile 指定配置文件, 替代默认搜索路径
func (cm *ConfigManager) SetConfigFile(path string) { cm.viper.SetConfigFile(path) }

// SetEnvFile 指定 .env 文件, 空字符串表示不加载
func (cm *ConfigManager) SetEnvFile(path string) { cm.envFile = path }

// LoadConfig 加载配置
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	// .env 只补充未设置的环境变量
	if cm.envFile != "" {
		if err := godotenv.Load(cm.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", cm.envFile, err)
		}
	}

	cm.setDefaults()

	// 读取配置文件
	if err := cm.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// 配置文件不存在时使用默认配置
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

// decode 解析并校验配置
func (cm *ConfigManager) decode() (*Config, error) {
	config := DefaultConfig()
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Sync.RetryAttempts = config.Source.RetryAttempts
	config.Sync.RetryInterval = config.Source.RetryInterval

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// setDefaults 设置默认配置值
func (cm *ConfigManager) setDefaults() {
	d := DefaultConfig()

	cm.viper.SetDefault("store.backend", d.Store.Backend)
	cm.viper.SetDefault("store.csv_path", d.Store.CSVPath)
	cm.viper.SetDefault("store.postgres_dsn", "")
	cm.viper.SetDefault("store.history_floor", d.Store.HistoryFloor)
	cm.viper.SetDefault("store.debug", false)

	cm.viper.SetDefault("source.base_url", d.Source.BaseURL)
	cm.viper.SetDefault("source.user_agent", d.Source.UserAgent)
	cm.viper.SetDefault("source.timeout", d.Source.Timeout)
	cm.viper.SetDefault("source.retry_attempts", d.Source.RetryAttempts)
	cm.viper.SetDefault("source.retry_interval", d.Source.RetryInterval)

	cm.viper.SetDefault("sync.min_request_delay", d.Sync.MinRequestDelay)
	cm.viper.SetDefault("sync.degraded_scan_limit", d.Sync.DegradedScanLimit)
	cm.viper.SetDefault("sync.lock_timeout", d.Sync.LockTimeout)
	cm.viper.SetDefault("sync.pending_ttl", d.Sync.PendingTTL)

	// Redis 默认配置
	cm.viper.SetDefault("redis.enabled", false)
	cm.viper.SetDefault("redis.addr", d.Redis.Addr)
	cm.viper.SetDefault("redis.password", d.Redis.Password)
	cm.viper.SetDefault("redis.db", d.Redis.DB)
	cm.viper.SetDefault("redis.pool_size", d.Redis.PoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)
	cm.viper.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	cm.viper.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	cm.viper.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	cm.viper.SetDefault("redis.pool_timeout", d.Redis.PoolTimeout)

	// 熔断器默认配置
	cm.viper.SetDefault("circuit_breaker.enabled", d.CircuitBreaker.Enabled)
	cm.viper.SetDefault("circuit_breaker.name", d.CircuitBreaker.Name)
	cm.viper.SetDefault("circuit_breaker.max_requests", d.CircuitBreaker.MaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", d.CircuitBreaker.Interval)
	cm.viper.SetDefault("circuit_breaker.timeout", d.CircuitBreaker.Timeout)
	cm.viper.SetDefault("circuit_breaker.failure_ratio", d.CircuitBreaker.FailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", d.CircuitBreaker.MinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", d.CircuitBreaker.OnStateChange)

	cm.viper.SetDefault("ocr.provider", d.OCR.Provider)
	cm.viper.SetDefault("ocr.threshold", d.OCR.Threshold)
	cm.viper.SetDefault("ocr.tesseract_path", d.OCR.TesseractPath)
	cm.viper.SetDefault("ocr.gemini_api_key", "")
	cm.viper.SetDefault("ocr.gemini_model", d.OCR.GeminiModel)
	cm.viper.SetDefault("ocr.timeout", d.OCR.Timeout)

	cm.viper.SetDefault("web.addr", d.Web.Addr)
	cm.viper.SetDefault("web.max_upload_bytes", d.Web.MaxUploadBytes)
	cm.viper.SetDefault("web.read_timeout", d.Web.ReadTimeout)
	cm.viper.SetDefault("web.write_timeout", d.Web.WriteTimeout)
	cm.viper.SetDefault("web.enable_sync", d.Web.EnableSync)

	cm.viper.SetDefault("log.level", d.Log.Level)
	cm.viper.SetDefault("log.encoding", d.Log.Encoding)
	cm.viper.SetDefault("log.development", d.Log.Development)
}

// WatchConfig 监听配置文件变化, 校验失败的新配置会被忽略
func (cm *ConfigManager) WatchConfig(logger Logger, callback func(*Config)) {
	if logger == nil {
		logger = NewSilentLogger()
	}

	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		config, err := cm.decode()
		if err != nil {
			// 记录错误但不中断服务
			logger.Error("Ignoring config change in %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		logger.Info("Config reloaded from %s", e.Name)
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig 获取当前配置
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// NewRedisClientFromConfig 从配置创建Redis客户端
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}
