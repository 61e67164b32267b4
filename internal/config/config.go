// Package config loads the formflow configuration from an optional YAML file
// and FORMFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/spf13/viper"

	"github.com/goliatone/go-formflow/pkg/auth"
	"github.com/goliatone/go-formflow/pkg/branding"
	"github.com/goliatone/go-formflow/pkg/orchestrator"
	"github.com/goliatone/go-formflow/pkg/ratelimit"
)

// EnvPrefix prefixes every environment override, e.g. FORMFLOW_BACKEND_BASE_URL.
const EnvPrefix = "FORMFLOW"

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the process configuration.
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Tenant  TenantConfig  `mapstructure:"tenant"`
	OTP     OTPConfig     `mapstructure:"otp"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// BackendConfig locates the user service.
type BackendConfig struct {
	BaseURL   string         `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	Endpoints auth.Endpoints `mapstructure:"endpoints"`
}

// TenantConfig is the tenant used when the host does not name one.
type TenantConfig struct {
	Code         string `mapstructure:"code" validate:"required"`
	ID           string `mapstructure:"id"`
	OrgID        string `mapstructure:"org_id"`
	AcademicYear string `mapstructure:"academic_year"`
}

// OTPConfig tunes the OTP step of registration.
type OTPConfig struct {
	Required       bool          `mapstructure:"required"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1"`
	Window         time.Duration `mapstructure:"window" validate:"gt=0"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown" validate:"gte=0"`
	Expiration     time.Duration `mapstructure:"expiration" validate:"gt=0"`
}

// LoggingConfig selects level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig configures the preview service.
type ServerConfig struct {
	Addr    string `mapstructure:"addr" validate:"required"`
	Metrics bool   `mapstructure:"metrics"`

	// OptionHosts are the hosts option previews may fetch from besides the
	// backend.
	OptionHosts []string `mapstructure:"option_hosts"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout:   15 * time.Second,
			Endpoints: auth.DefaultEndpoints(),
		},
		Tenant: TenantConfig{
			Code: branding.DefaultTenant,
		},
		OTP: OTPConfig{
			Required:       true,
			MaxAttempts:    ratelimit.DefaultMaxAttempts,
			Window:         ratelimit.DefaultWindow,
			ResendCooldown: orchestrator.DefaultResendCooldown,
			Expiration:     orchestrator.DefaultOTPExpiry,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:    ":8080",
			Metrics: true,
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result. Without a path a
// formflow.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("formflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("backend.base_url", cfg.Backend.BaseURL)
	v.SetDefault("backend.timeout", cfg.Backend.Timeout)
	v.SetDefault("backend.endpoints.signin", cfg.Backend.Endpoints.Signin)
	v.SetDefault("backend.endpoints.authenticate", cfg.Backend.Endpoints.Authenticate)
	v.SetDefault("backend.endpoints.send_otp", cfg.Backend.Endpoints.SendOTP)
	v.SetDefault("backend.endpoints.verify_otp", cfg.Backend.Endpoints.VerifyOTP)
	v.SetDefault("backend.endpoints.register", cfg.Backend.Endpoints.Register)
	v.SetDefault("backend.endpoints.reset_password", cfg.Backend.Endpoints.ResetPassword)
	v.SetDefault("backend.endpoints.forget_otp", cfg.Backend.Endpoints.ForgetOTP)
	v.SetDefault("backend.endpoints.read_schema", cfg.Backend.Endpoints.ReadSchema)
	v.SetDefault("backend.endpoints.tenants", cfg.Backend.Endpoints.Tenants)
	v.SetDefault("tenant.code", cfg.Tenant.Code)
	v.SetDefault("tenant.id", cfg.Tenant.ID)
	v.SetDefault("tenant.org_id", cfg.Tenant.OrgID)
	v.SetDefault("tenant.academic_year", cfg.Tenant.AcademicYear)
	v.SetDefault("otp.required", cfg.OTP.Required)
	v.SetDefault("otp.max_attempts", cfg.OTP.MaxAttempts)
	v.SetDefault("otp.window", cfg.OTP.Window)
	v.SetDefault("otp.resend_cooldown", cfg.OTP.ResendCooldown)
	v.SetDefault("otp.expiration", cfg.OTP.Expiration)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.metrics", cfg.Server.Metrics)
	v.SetDefault("server.option_hosts", cfg.Server.OptionHosts)
}
