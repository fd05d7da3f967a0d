package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"techcare/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TEST_JWT_SECRET", "from-env")

	configPath := writeFile(t, tmpDir, "config.yaml", `
app:
  name: "techcare-test"
database:
  driver: "sqlite3"
  path: "test.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
http:
  read_timeout: 5s
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "techcare-test", cfg.App.Name)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "usd", cfg.Payments.Currency)
	assert.Len(t, cfg.Loyalty.Tiers, 4)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_override")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_DSN", "postgres://u:p@localhost/techcare?sslmode=disable")

	configPath := writeFile(t, tmpDir, "config.yaml", `
database:
  driver: "sqlite3"
  path: "ignored.db"
auth:
  jwt_secret: "secret"
payments:
  secret_key: "sk_from_yaml"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "sk_test_override", cfg.Payments.SecretKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Contains(t, cfg.Database.DSN, "localhost")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid sqlite config",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite3", Path: "path"},
				Auth:     AuthConfig{JWTSecret: "secret"},
			},
			wantErr: false,
		},
		{
			name: "postgres without dsn",
			cfg: Config{
				Database: DatabaseConfig{Driver: "postgres"},
				Auth:     AuthConfig{JWTSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "unknown driver",
			cfg: Config{
				Database: DatabaseConfig{Driver: "mysql", DSN: "x"},
				Auth:     AuthConfig{JWTSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "missing jwt secret",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite3", Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "unordered tiers",
			cfg: Config{
				Database: DatabaseConfig{Driver: "sqlite3", Path: "path"},
				Auth:     AuthConfig{JWTSecret: "secret"},
				Loyalty: LoyaltyConfig{Tiers: []models.TierThreshold{
					{Name: "bronze", MinPoints: 0},
					{Name: "silver", MinPoints: 0},
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRewards(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := writeFile(t, tmpDir, "rewards.yaml", `
rewards:
  - id: "discount-10"
    name: "10% off"
    points_cost: 500
    reward_type: "discount_percent"
    value: 10
    valid_days: 30
    is_active: true
`)
		rewards, err := LoadRewards(path)
		require.NoError(t, err)
		require.Len(t, rewards, 1)
		assert.Equal(t, int64(500), rewards[0].PointsCost)
		assert.True(t, rewards[0].IsActive)
	})

	t.Run("Duplicate", func(t *testing.T) {
		path := writeFile(t, tmpDir, "dup.yaml", `
rewards:
  - id: "a"
    points_cost: 1
  - id: "a"
    points_cost: 2
`)
		_, err := LoadRewards(path)
		assert.Error(t, err)
	})

	t.Run("ZeroCost", func(t *testing.T) {
		path := writeFile(t, tmpDir, "zero.yaml", `
rewards:
  - id: "free"
    points_cost: 0
`)
		_, err := LoadRewards(path)
		assert.Error(t, err)
	})
}
