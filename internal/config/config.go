package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// defaultJWTSecret keeps the CLI subcommands usable without a secret; serve refuses it.
const defaultJWTSecret = "changeme"

var ErrInsecureJWTSecret = errors.New("config: JWT_SECRET is unset or still the default")

type Config struct {
	Port        string
	CORSOrigins []string

	DBDriver    string
	DatabaseURL string
	MySQL       MySQL

	RedisHost     string
	NotifyChannel string

	RabbitMQURL string
	Exchange    string

	JWTSecret string
	JWTTTL    time.Duration

	ShippingFee int64

	CinetPay CinetPay
}

type MySQL struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

func (m MySQL) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

type CinetPay struct {
	APIKey    string
	SiteID    string
	SecretKey string
	BaseURL   string
	NotifyURL string
	ReturnURL string
	Currency  string
	Channels  string
	Lang      string
	Timeout   time.Duration
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	backend := getEnv("BACKEND_URL", "http://localhost:8080")
	frontend := getEnv("FRONTEND_URL", "http://localhost:5173")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		MySQL: MySQL{
			User:     os.Getenv("MYSQL_USER"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Database: os.Getenv("MYSQL_DATABASE"),
		},

		RedisHost:     os.Getenv("REDIS_HOST"),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "marketplace:notifications"),

		RabbitMQURL: os.Getenv("RABBITMQ_URL"),
		Exchange:    getEnv("RABBITMQ_EXCHANGE", "marketplace.exchange"),

		JWTSecret: getEnv("JWT_SECRET", defaultJWTSecret),
		JWTTTL:    getDuration("JWT_TTL", 24*time.Hour),

		ShippingFee: getInt64("SHIPPING_FEE", 0),

		CinetPay: CinetPay{
			APIKey:    os.Getenv("CINETPAY_API_KEY"),
			SiteID:    os.Getenv("CINETPAY_SITE_ID"),
			SecretKey: os.Getenv("CINETPAY_SECRET_KEY"),
			BaseURL:   getEnv("CINETPAY_BASE_URL", "https://api-checkout.cinetpay.com/v2"),
			NotifyURL: getEnv("CINETPAY_NOTIFY_URL", backend+"/api/payments/cinetpay/notify"),
			ReturnURL: getEnv("CINETPAY_RETURN_URL", frontend+"/payment-success"),
			Currency:  getEnv("CINETPAY_CURRENCY", "XOF"),
			Channels:  getEnv("CINETPAY_CHANNELS", "ALL"),
			Lang:      getEnv("CINETPAY_LANG", "fr"),
			Timeout:   getDuration("CINETPAY_TIMEOUT", 15*time.Second),
		},
	}
}

// Validate reports settings the API must not start with. Tokens signed with a known secret
// can be forged for any user.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" || c.JWTSecret == defaultJWTSecret {
		return ErrInsecureJWTSecret
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("config: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
