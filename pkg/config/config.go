package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	DB      DBConfig
	Store   StoreConfig
	HTTP    HTTPConfig
	Rate    RateConfig
	Trigger TriggerConfig
	Kafka   KafkaConfig
	Log     LogConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int
	AutoMigrate bool
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// StoreConfig elige el almacén de productos/ventas: "postgres" o "memory".
type StoreConfig struct {
	Driver string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateConfig configuración del caché de tasa USD -> Bs.
type RateConfig struct {
	CacheMinutes   int
	Minimum        float64 // valores <= Minimum se descartan
	Default        float64 // tasa segura si no hay nada persistido
	PrimaryURL     string  // API JSON
	FallbackURL    string  // página a raspar (BCV)
	TimeoutSeconds int
	ProbeAddrs     []string // host:port usados para verificar conectividad
}

// CacheDuration ventana durante la cual no se consulta la red.
func (c RateConfig) CacheDuration() time.Duration {
	return time.Duration(c.CacheMinutes) * time.Minute
}

// Timeout tiempo máximo por adquisición remota.
func (c RateConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TriggerConfig actualización periódica de la tasa.
type TriggerConfig struct {
	IntervalMinutes  int
	RetryBaseMinutes int
	RetryMaxMinutes  int
	RetryMaxAttempts int
}

// KafkaConfig publicación de eventos; sin brokers el publicador es no-op.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled indica si hay brokers configurados.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// LogConfig nivel del logger.
type LogConfig struct {
	Level string
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, RATE_CACHE_MINUTES, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "tiococo-pos"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "tiococo"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
			MaxConns:    getInt(v, "DB_MAX_CONNS", 10),
			AutoMigrate: getBool(v, "DB_AUTO_MIGRATE", true),
		},
		Store: StoreConfig{
			Driver: getString(v, "STORE_DRIVER", "postgres"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Rate: RateConfig{
			CacheMinutes:   getInt(v, "RATE_CACHE_MINUTES", 30),
			Minimum:        getFloat(v, "RATE_MIN", 1),
			Default:        getFloat(v, "RATE_DEFAULT", 36.0),
			PrimaryURL:     getString(v, "RATE_PRIMARY_URL", "https://ve.dolarapi.com/v1/dolares/oficial"),
			FallbackURL:    getString(v, "RATE_FALLBACK_URL", "https://www.bcv.org.ve"),
			TimeoutSeconds: getInt(v, "RATE_TIMEOUT_SECONDS", 30),
			ProbeAddrs:     getSlice(v, "RATE_PROBE_ADDRS", []string{"1.1.1.1:443", "8.8.8.8:53"}),
		},
		Trigger: TriggerConfig{
			IntervalMinutes:  getInt(v, "RATE_TRIGGER_INTERVAL_MINUTES", 60),
			RetryBaseMinutes: getInt(v, "RATE_RETRY_BASE_MINUTES", 60),
			RetryMaxMinutes:  getInt(v, "RATE_RETRY_MAX_MINUTES", 360),
			RetryMaxAttempts: getInt(v, "RATE_RETRY_MAX_ATTEMPTS", 3),
		},
		Kafka: KafkaConfig{
			Brokers: getSlice(v, "KAFKA_BROKERS", nil),
			Topic:   getString(v, "KAFKA_TOPIC", "tiococo.events"),
		},
		Log: LogConfig{
			Level: getString(v, "LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rechaza combinaciones que romperían las invariantes de la tasa o del trigger.
func (c *Config) Validate() error {
	var errs []error
	if c.Rate.Default <= c.Rate.Minimum {
		errs = append(errs, fmt.Errorf("RATE_DEFAULT (%v) debe ser mayor que RATE_MIN (%v)", c.Rate.Default, c.Rate.Minimum))
	}
	if c.Rate.CacheMinutes <= 0 {
		errs = append(errs, errors.New("RATE_CACHE_MINUTES debe ser positivo"))
	}
	if c.Rate.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("RATE_TIMEOUT_SECONDS debe ser positivo"))
	}
	if c.Trigger.IntervalMinutes <= 0 || c.Trigger.RetryBaseMinutes <= 0 || c.Trigger.RetryMaxMinutes <= 0 {
		errs = append(errs, errors.New("los intervalos del trigger deben ser positivos"))
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "memory" {
		errs = append(errs, fmt.Errorf("STORE_DRIVER desconocido: %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
		if err != nil {
			return def
		}
		return f
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		b, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func getSlice(v *viper.Viper, key string, def []string) []string {
	if !v.IsSet(key) {
		return def
	}
	var out []string
	for _, s := range strings.Split(v.GetString(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
