package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: facegate
  user: fg
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.60, cfg.Auth.AcceptanceThreshold)
	assert.Equal(t, 3*time.Second, cfg.Auth.RequiredDetectionTime)
	assert.Equal(t, 10*time.Second, cfg.Auth.UnauthorizedTime)
	assert.Equal(t, 60*time.Second, cfg.Auth.LogThrottleWindow)
	assert.Equal(t, 2*time.Second, cfg.Auth.FailedMetricInterval)
	assert.Equal(t, 33*time.Millisecond, cfg.Auth.TickInterval)
	assert.Equal(t, time.Second, cfg.Auth.CommitDelay)
	assert.Equal(t, "/dev/video0", cfg.Camera.Device)
	assert.Equal(t, "smtp.gmail.com", cfg.Alert.SMTPHost)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "threshold above 1",
			yaml:    "auth:\n  acceptance_threshold: 1.5\n",
			wantErr: "outside [-1,1]",
		},
		{
			name:    "threshold below -1",
			yaml:    "auth:\n  acceptance_threshold: -2\n",
			wantErr: "outside [-1,1]",
		},
		{
			name:    "negative detection time",
			yaml:    "auth:\n  required_detection_time: -3s\n",
			wantErr: "must be positive",
		},
		{
			name:    "negative throttle window",
			yaml:    "auth:\n  log_throttle_window: -1m\n",
			wantErr: "must be positive",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FG_SERVER_PORT", "9090")
	t.Setenv("FG_ACCEPTANCE_THRESHOLD", "0.9")
	t.Setenv("FG_CAMERA_DEVICE", "rtsp://cam.local/stream")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 0.9, cfg.Auth.AcceptanceThreshold)
	assert.Equal(t, "rtsp://cam.local/stream", cfg.Camera.Device)
}

func TestZeroThresholdReadsAsUnset(t *testing.T) {
	t.Setenv("FG_ACCEPTANCE_THRESHOLD", "0")

	cfg, err := Load(writeConfig(t, "server:\n  port: 8081\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.60, cfg.Auth.AcceptanceThreshold)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "fg", User: "u", Password: "p"}
	assert.Equal(t, "postgres://u:p@db:5433/fg?sslmode=disable", d.DSN())
}
