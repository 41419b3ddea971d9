package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the site backend. It is
// loaded once at startup and passed to components by dependency injection;
// nothing re-reads the environment per request.
type Config struct {
	App    AppConfig
	SMTP   SMTPConfig
	Mail   MailConfig
	Upload UploadConfig
	Pool   PoolConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env       string
	Port      int
	LogLevel  string
	StaticDir string
}

// SMTPConfig stores connection settings for the outbound mail relay.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Pass        string
	ImplicitTLS bool
}

// MailConfig holds the addressing applied to every outbound notification.
type MailConfig struct {
	FromName    string
	FromAddress string
	ToAddress   string
	CCAddress   string
}

// UploadConfig holds the limits enforced while parsing attachment uploads.
type UploadConfig struct {
	MaxFiles     int
	MaxFileBytes int64
}

// PoolConfig tunes the outbound SMTP connection pool. The limits protect
// relay reputation under load; a saturated pool delays sends, it never
// drops them.
type PoolConfig struct {
	MaxConnections int
	SendRate       float64
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 3001, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.StaticDir = ldr.getString("STATIC_DIR", "", false)

	cfg.SMTP.Host = ldr.getString("SMTP_HOST", "smtp-relay.brevo.com", false)
	cfg.SMTP.Port = ldr.getInt("SMTP_PORT", 587, false)
	cfg.SMTP.User = ldr.getFallback("SENDINBLUE_USER", "SMTP_USER", true)
	cfg.SMTP.Pass = ldr.getFallback("SENDINBLUE_PASS", "SMTP_PASSWORD", true)
	cfg.SMTP.ImplicitTLS = ldr.getBool("SMTP_IMPLICIT_TLS", false, false)

	cfg.Mail.FromName = ldr.getString("EMAIL_FROM_NAME", "Magpollo Website", false)
	cfg.Mail.FromAddress = ldr.getString("EMAIL_FROM", "noreply@magpollo.com", false)
	cfg.Mail.ToAddress = ldr.getString("EMAIL_TO", "salesteam@magpollo.com", false)
	cfg.Mail.CCAddress = ldr.getString("EMAIL_CC", "", false)

	cfg.Upload.MaxFiles = ldr.getInt("UPLOAD_MAX_FILES", 5, false)
	cfg.Upload.MaxFileBytes = ldr.getInt64("UPLOAD_MAX_FILE_BYTES", 10<<20, false)

	cfg.Pool.MaxConnections = ldr.getInt("MAIL_MAX_CONNECTIONS", 5, false)
	cfg.Pool.SendRate = ldr.getFloat("MAIL_SEND_RATE", 5, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

// getFallback reads the primary variable and falls back to the legacy name.
// The deployment historically used the SENDINBLUE_* names and newer
// environments set the generic SMTP_* ones; both must keep working.
func (l *envLoader) getFallback(primary, fallback string, required bool) string {
	if val := strings.TrimSpace(os.Getenv(primary)); val != "" {
		return val
	}
	if val := strings.TrimSpace(os.Getenv(fallback)); val != "" {
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s (or %s) is required", primary, fallback))
	}
	return ""
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt64(key string, def int64, required bool) int64 {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getFloat(key string, def float64, required bool) float64 {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid number", key))
			return def
		}
		return f
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
