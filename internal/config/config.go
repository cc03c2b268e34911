package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
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

// RecognitionConfig tunes the per-frame recognition engine.
type RecognitionConfig struct {
	ModelsDir string `yaml:"models_dir"`
	// Tolerance is the maximum embedding distance accepted as a match.
	Tolerance float64 `yaml:"recognition_tolerance"`
	// DetectionThreshold is the minimum detector confidence for a face.
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// ScaleFactor downsizes frames before detection, in (0,1].
	ScaleFactor float64 `yaml:"detection_scale_factor"`
	// SkipFrames is how many frames may reuse the previous result set.
	SkipFrames int `yaml:"skip_frames"`
	// CacheTimeout bounds the exact-frame fingerprint cache.
	CacheTimeout time.Duration `yaml:"cache_timeout"`
	// WorkerCount is the embedder worker pool size per session.
	WorkerCount int `yaml:"worker_count"`
	DefaultFPS  int `yaml:"default_fps"`
	FrameWidth  int `yaml:"frame_width"`
}

// LivenessConfig tunes the blink-based liveness gate.
type LivenessConfig struct {
	ClosedEARThreshold float64       `yaml:"closed_ear_threshold"`
	MinClosedFrames    int           `yaml:"min_consecutive_closed_frames"`
	SessionWindow      time.Duration `yaml:"session_window"`
}

type AttendanceConfig struct {
	// ConfidenceThreshold is the minimum match confidence for marking.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// MaxEmbeddingsPerIdentity caps enrollment images per identity.
	MaxEmbeddingsPerIdentity int `yaml:"max_embeddings_per_identity"`
}

type StorageConfig struct {
	// FrameRetention is how many recent frames to keep per camera in MinIO.
	FrameRetention int `yaml:"frame_retention"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from a YAML file and applies environment overrides.
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

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Recognition.Tolerance == 0 {
		cfg.Recognition.Tolerance = 0.6
	}
	if cfg.Recognition.DetectionThreshold == 0 {
		cfg.Recognition.DetectionThreshold = 0.5
	}
	if cfg.Recognition.ScaleFactor == 0 {
		cfg.Recognition.ScaleFactor = 0.5
	}
	if cfg.Recognition.SkipFrames == 0 {
		cfg.Recognition.SkipFrames = 3
	}
	if cfg.Recognition.CacheTimeout == 0 {
		cfg.Recognition.CacheTimeout = 2 * time.Second
	}
	if cfg.Recognition.WorkerCount == 0 {
		cfg.Recognition.WorkerCount = 2
	}
	if cfg.Recognition.DefaultFPS == 0 {
		cfg.Recognition.DefaultFPS = 15
	}
	if cfg.Recognition.FrameWidth == 0 {
		cfg.Recognition.FrameWidth = 640
	}
	if cfg.Liveness.ClosedEARThreshold == 0 {
		cfg.Liveness.ClosedEARThreshold = 0.22
	}
	if cfg.Liveness.MinClosedFrames == 0 {
		cfg.Liveness.MinClosedFrames = 2
	}
	if cfg.Liveness.SessionWindow == 0 {
		cfg.Liveness.SessionWindow = 6 * time.Second
	}
	if cfg.Attendance.ConfidenceThreshold == 0 {
		cfg.Attendance.ConfidenceThreshold = 0.6
	}
	if cfg.Attendance.MaxEmbeddingsPerIdentity == 0 {
		cfg.Attendance.MaxEmbeddingsPerIdentity = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FC_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FC_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FC_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FC_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FC_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FC_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FC_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FC_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FC_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FC_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FC_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FC_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FC_MODELS_DIR"); v != "" {
		cfg.Recognition.ModelsDir = v
	}
	if v := os.Getenv("FC_RECOGNITION_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.Tolerance = f
		}
	}
	if v := os.Getenv("FC_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Attendance.ConfidenceThreshold = f
		}
	}
}
