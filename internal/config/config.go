package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Camera   CameraConfig   `yaml:"camera"`
	Vision   VisionConfig   `yaml:"vision"`
	Auth     AuthConfig     `yaml:"auth"`
	Alert    AlertConfig    `yaml:"alert"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type CameraConfig struct {
	// Device is whatever ffmpeg accepts as input: /dev/video0, an RTSP
	// URL, or a file path for replay.
	Device string `yaml:"device"`
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
}

// AuthConfig holds the decision-engine parameters.
type AuthConfig struct {
	AcceptanceThreshold   float64       `yaml:"acceptance_threshold"`
	RequiredDetectionTime time.Duration `yaml:"required_detection_time"`
	UnauthorizedTime      time.Duration `yaml:"unauthorized_time"`
	LogThrottleWindow     time.Duration `yaml:"log_throttle_window"`
	FailedMetricInterval  time.Duration `yaml:"failed_metric_interval"`
	TickInterval          time.Duration `yaml:"tick_interval"`
	CommitDelay           time.Duration `yaml:"commit_delay"`
}

type AlertConfig struct {
	SettingsFile string `yaml:"settings_file"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects engine parameters that would make the decision logic
// meaningless: a similarity threshold outside [-1,1] or a non-positive
// duration.
func (c *Config) Validate() error {
	if c.Auth.AcceptanceThreshold < -1 || c.Auth.AcceptanceThreshold > 1 {
		return fmt.Errorf("auth.acceptance_threshold %.2f outside [-1,1]", c.Auth.AcceptanceThreshold)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"auth.required_detection_time", c.Auth.RequiredDetectionTime},
		{"auth.unauthorized_time", c.Auth.UnauthorizedTime},
		{"auth.log_throttle_window", c.Auth.LogThrottleWindow},
		{"auth.failed_metric_interval", c.Auth.FailedMetricInterval},
		{"auth.tick_interval", c.Auth.TickInterval},
		{"auth.commit_delay", c.Auth.CommitDelay},
	}
	for _, e := range durations {
		if e.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", e.name, e.d)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 800
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	// An explicit 0 (file or FG_ACCEPTANCE_THRESHOLD=0) reads as unset
	// and takes the default; use a small negative value to set a
	// threshold at the zero-similarity boundary.
	if cfg.Auth.AcceptanceThreshold == 0 {
		cfg.Auth.AcceptanceThreshold = 0.60
	}
	if cfg.Auth.RequiredDetectionTime == 0 {
		cfg.Auth.RequiredDetectionTime = 3 * time.Second
	}
	if cfg.Auth.UnauthorizedTime == 0 {
		cfg.Auth.UnauthorizedTime = 10 * time.Second
	}
	if cfg.Auth.LogThrottleWindow == 0 {
		cfg.Auth.LogThrottleWindow = 60 * time.Second
	}
	if cfg.Auth.FailedMetricInterval == 0 {
		cfg.Auth.FailedMetricInterval = 2 * time.Second
	}
	if cfg.Auth.TickInterval == 0 {
		cfg.Auth.TickInterval = 33 * time.Millisecond
	}
	if cfg.Auth.CommitDelay == 0 {
		cfg.Auth.CommitDelay = time.Second
	}
	if cfg.Alert.SettingsFile == "" {
		cfg.Alert.SettingsFile = "config/notification_settings.json"
	}
	if cfg.Alert.SMTPHost == "" {
		cfg.Alert.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Alert.SMTPPort == 0 {
		cfg.Alert.SMTPPort = 587
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FG_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("FG_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FG_ACCEPTANCE_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Auth.AcceptanceThreshold = t
		}
	}
}
