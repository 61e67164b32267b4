package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formflow/internal/config"
	"github.com/goliatone/go-formflow/pkg/auth"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "shikshagraha", cfg.Tenant.Code)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.OTP.Window)
	assert.Equal(t, auth.DefaultEndpoints(), cfg.Backend.Endpoints)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := config.Load("testdata/formflow.yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://saas-qa.tekdinext.com/interface", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "/user/v2/account/create", cfg.Backend.Endpoints.Register)
	assert.Equal(t, auth.DefaultEndpoints().Signin, cfg.Backend.Endpoints.Signin)
	assert.Equal(t, "shikshalokam", cfg.Tenant.Code)
	assert.False(t, cfg.OTP.Required)
	assert.Equal(t, 45*time.Second, cfg.OTP.ResendCooldown)
	assert.Equal(t, 600*time.Second, cfg.OTP.Expiration)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"entity.tekdinext.com"}, cfg.Server.OptionHosts)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FORMFLOW_TENANT_CODE", "pratham")
	t.Setenv("FORMFLOW_OTP_MAX_ATTEMPTS", "5")
	t.Setenv("FORMFLOW_SERVER_ADDR", "127.0.0.1:9090")

	cfg, err := config.Load("testdata/formflow.yaml")
	require.NoError(t, err)
	assert.Equal(t, "pratham", cfg.Tenant.Code)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("logging:\n  format: xml\notp:\n  max_attempts: 0\n"), 0o600))
	_, err = config.Load(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))
	assert.Contains(t, err.Error(), "Format")
	assert.Contains(t, err.Error(), "MaxAttempts")
}
