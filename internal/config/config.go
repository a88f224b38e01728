package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Supported values for DB_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are parsed with time.ParseDuration
// (e.g. "12h", "90m").
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // logrus level name
	LogJSON  bool   // emit JSON log lines instead of text

	DB Database

	ReservationTTL time.Duration   // age after which a reservation is reclaimed by the sweep
	SweepInterval  time.Duration   // how often the expiry sweep runs
	TicketPrice    decimal.Decimal // price of a single ticket; zero disables amount_due
	RaffleName     string          // shown in notifications

	SMTP   SMTP
	Notify Notify

	RabbitURL string // AMQP URL; empty disables the broker
}

// Database selects and configures the ticket store backend.
type Database struct {
	Driver     string // sqlite or mysql
	SQLitePath string // file path for the sqlite store
	User       string // database username
	Pass       string // database password (optional)
	Host       string // database host address
	Port       string // database port number
	Name       string // database name
}

// SMTP configures the email notification sink.  The mailer is disabled
// when Host is empty.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string // bare sender address
	FromName string // display name, defaults to RaffleName
}

// Enabled reports whether an SMTP server was configured.
func (s SMTP) Enabled() bool { return s.Host != "" }

// Notify sizes the asynchronous notification dispatcher.
type Notify struct {
	Workers int
	Buffer  int
	Timeout time.Duration // upper bound for a single delivery attempt
}

// Load reads configuration values from environment variables (after
// merging an optional .env file) and returns a Config.  Variables that are
// required for the selected database driver are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load() // a missing .env file is not an error

	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "3000"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		LogJSON:  strings.EqualFold(envStr("LOG_FORMAT", "text"), "json"),

		DB: Database{
			Driver:     strings.ToLower(envStr("DB_DRIVER", DriverSQLite)),
			SQLitePath: envStr("SQLITE_PATH", "./raffle.db"),
		},

		ReservationTTL: envDur("RESERVATION_TTL", 12*time.Hour),
		SweepInterval:  envDur("SWEEP_INTERVAL", time.Hour),
		TicketPrice:    envDecimal("TICKET_PRICE", decimal.Zero),
		RaffleName:     envStr("RAFFLE_NAME", "Gran Rifa 2025"),

		SMTP: SMTP{
			Host: os.Getenv("SMTP_HOST"),
			Port: envInt("SMTP_PORT", 587),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: os.Getenv("MAIL_FROM"),
		},
		Notify: Notify{
			Workers: envInt("NOTIFY_WORKERS", 2),
			Buffer:  envInt("NOTIFY_BUFFER", 256),
			Timeout: envDur("NOTIFY_TIMEOUT", 15*time.Second),
		},

		RabbitURL: rabbitURL(),
	}
	cfg.SMTP.FromName = envStr("MAIL_FROM_NAME", cfg.RaffleName)
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}

	switch cfg.DB.Driver {
	case DriverMySQL:
		cfg.DB.User = must("DB_USER")      // database user
		cfg.DB.Pass = os.Getenv("DB_PASS") // database password (empty allowed)
		cfg.DB.Host = must("DB_HOST")      // database host
		cfg.DB.Port = must("DB_PORT")      // database port
		cfg.DB.Name = must("DB_NAME")      // database name
	case DriverSQLite:
	default:
		log.Fatalf("unsupported DB_DRIVER: %q", cfg.DB.Driver)
	}

	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 12 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.Notify.Workers < 1 {
		cfg.Notify.Workers = 1
	}
	if cfg.Notify.Buffer < 1 {
		cfg.Notify.Buffer = 1
	}
	if cfg.TicketPrice.IsNegative() {
		log.Fatalf("invalid TICKET_PRICE: %s", cfg.TicketPrice)
	}
	return cfg
}

func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envDecimal(k string, d decimal.Decimal) decimal.Decimal {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dec, err := decimal.NewFromString(v)
	if err != nil {
		log.Fatalf("invalid decimal for %s: %q", k, v)
	}
	return dec
}
