package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// TTLs de tokens: acepta segundos enteros o sufijos s/m/h/d. Valores
	// invalidos caen al default sin frenar el arranque.
	JWTAccessSecret  string `env:"JWT_ACCESS_SECRET,required"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET,required"`
	JWTAccessExp     string `env:"JWT_ACCESS_EXP" envDefault:"900"`
	JWTRefreshExp    string `env:"JWT_REFRESH_EXP" envDefault:"2592000"`

	LoginMaxAttempts   int    `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockoutWindow string `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"15m"`

	SignupCodeTTL     string `env:"SIGNUP_CODE_TTL" envDefault:"15m"`
	SignupMaxAttempts int    `env:"SIGNUP_MAX_ATTEMPTS" envDefault:"5"`
	SignupMaxResends  int    `env:"SIGNUP_MAX_RESENDS" envDefault:"3"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
