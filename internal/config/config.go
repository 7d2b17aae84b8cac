package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        int      `yaml:"port"`
		CORSOrigins []string `yaml:"corsOrigins"`
	} `yaml:"server"`

	Scoring struct {
		BaseURL        string        `yaml:"baseUrl"`
		RequestTimeout time.Duration `yaml:"requestTimeout"`
	} `yaml:"scoring"`

	History struct {
		Backend  string `yaml:"backend"` // memory | mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"` // postgres only
	} `yaml:"history"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Capture struct {
		MaxUploadBytes     int64  `yaml:"maxUploadBytes"`
		AllowM4A           bool   `yaml:"allowM4A"`
		RecommendedSeconds int    `yaml:"recommendedSeconds"`
		SampleRate         int    `yaml:"sampleRate"`
		Channels           int    `yaml:"channels"`
		DevicePath         string `yaml:"devicePath"`
	} `yaml:"capture"`
}

// Load baca file config.yaml; a .env file (when present) and environment
// variables override the sensitive fields.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SCORING_BASE_URL"); v != "" {
		c.Scoring.BaseURL = v
	}
	if v := os.Getenv("HISTORY_BACKEND"); v != "" {
		c.History.Backend = v
	}
	if v := os.Getenv("HISTORY_PASSWORD"); v != "" {
		c.History.Password = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Scoring.RequestTimeout == 0 {
		c.Scoring.RequestTimeout = 60 * time.Second
	}
	if c.History.Backend == "" {
		c.History.Backend = "memory"
	}
	if c.Capture.MaxUploadBytes == 0 {
		c.Capture.MaxUploadBytes = 10 * 1024 * 1024
	}
	if c.Capture.RecommendedSeconds == 0 {
		c.Capture.RecommendedSeconds = 30
	}
	if c.Capture.SampleRate == 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.Channels == 0 {
		c.Capture.Channels = 1
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.History.User,
		c.History.Password,
		c.History.Host,
		c.History.Port,
		c.History.Name,
	)
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	ssl := c.History.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.History.Host,
		c.History.Port,
		c.History.User,
		c.History.Password,
		c.History.Name,
		ssl,
	)
}
