package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Enforcement EnforcementConfig `mapstructure:"enforcement"`
	Journal     JournalConfig     `mapstructure:"journal"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ConsolePort  int           `mapstructure:"console_port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и Cache).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// NegotiationConfig — параметры торга. Потолки и половинный контроффер это
// продуктовые константы, не системные, поэтому все вынесено в конфиг.
type NegotiationConfig struct {
	MaxRounds           int     `mapstructure:"max_rounds"`
	DefaultOfferSeconds float64 `mapstructure:"default_offer_seconds"` // Если пользователь так и не назвал число
	MinOfferSeconds     float64 `mapstructure:"min_offer_seconds"`
	// Потолок разумности по типам событий, в секундах.
	// Ключ "default" применяется ко всем незаданным типам.
	CeilingSeconds map[string]float64 `mapstructure:"ceiling_seconds"`
}

// Ceiling возвращает потолок для типа события.
func (c NegotiationConfig) Ceiling(eventType string) float64 {
	if v, ok := c.CeilingSeconds[eventType]; ok {
		return v
	}
	if v, ok := c.CeilingSeconds["default"]; ok {
		return v
	}
	return 900 // 15 минут — дефолт для scrolling/distraction
}

// TrackerConfig — параметры цикла контроля соблюдения.
type TrackerConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	WarningWindow time.Duration `mapstructure:"warning_window"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
}

// EnforcementConfig — параметры принуждения.
type EnforcementConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`      // Ретраи close_resource
	RenotifyInterval time.Duration `mapstructure:"renotify_interval"` // Троттлинг повторных предупреждений
}

// JournalConfig — буферизация журнала договоров.
type JournalConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: TRACKER_GRACE_PERIOD=45s перекроет tracker.grace_period
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.console_port", 8000)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("negotiation.max_rounds", 3)
	v.SetDefault("negotiation.default_offer_seconds", 600) // 10 минут
	v.SetDefault("negotiation.min_offer_seconds", 60)      // Никогда не предлагаем меньше минуты
	v.SetDefault("negotiation.ceiling_seconds", map[string]float64{"default": 900})

	v.SetDefault("tracker.tick_interval", 2*time.Second)
	v.SetDefault("tracker.warning_window", 60*time.Second)
	v.SetDefault("tracker.grace_period", 30*time.Second)

	v.SetDefault("enforcement.max_attempts", 3)
	v.SetDefault("enforcement.renotify_interval", 10*time.Second)

	v.SetDefault("journal.buffer_size", 10000)
	v.SetDefault("journal.batch_size", 100)
	v.SetDefault("journal.flush_interval", 500*time.Millisecond)
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
