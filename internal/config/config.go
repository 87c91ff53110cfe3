// Package config 提供配置管理
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config 应用配置
type Config struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name     string `yaml:"name"`
	Env      string `yaml:"env"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// APIConfig API配置
type APIConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	CORS    CORSConfig    `yaml:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// SchedulerConfig 排班求解配置
type SchedulerConfig struct {
	DefaultTimeout     time.Duration `yaml:"default_timeout"`
	MaxIterations      int           `yaml:"max_iterations"`
	MaxNodes           int           `yaml:"max_nodes"`
	Seed               int64         `yaml:"seed"`
	CeilingWindow      int           `yaml:"ceiling_window"`       // 滚动窗口周期数
	CeilingHours       float64       `yaml:"ceiling_hours"`        // 周期人均工时上限
	MaxConsecutiveDays int           `yaml:"max_consecutive_days"` // 连续工作天数上限
	WorkloadTolerance  float64       `yaml:"workload_tolerance"`   // 工作量均衡容差
}

// ConstraintConfig 返回约束注册用的参数表
func (c *SchedulerConfig) ConstraintConfig() map[string]interface{} {
	return map[string]interface{}{
		"ceiling_window_periods":    c.CeilingWindow,
		"ceiling_hours_per_period":  c.CeilingHours,
		"max_consecutive_work_days": c.MaxConsecutiveDays,
		"workload_tolerance":        c.WorkloadTolerance,
	}
}

// OptimizerConfig 多目标优化配置
type OptimizerConfig struct {
	Divisions        int    `yaml:"divisions"`
	NeighborhoodSize int    `yaml:"neighborhood_size"`
	Generations      int    `yaml:"generations"`
	Workers          int    `yaml:"workers"`
	Scalarizer       string `yaml:"scalarizer"`
	ArchiveCapacity  int    `yaml:"archive_capacity"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:     getEnv("APP_NAME", "rotaplan"),
			Env:      getEnv("APP_ENV", "development"),
			Port:     getEnvInt("APP_PORT", 7012),
			LogLevel: getEnv("APP_LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "rotaplan"),
			User:            getEnv("DB_USER", "rotaplan"),
			Password:        getEnv("DB_PASSWORD", "rotaplan123"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		API: APIConfig{
			Timeout: getEnvDuration("API_TIMEOUT", 30*time.Second),
			CORS: CORSConfig{
				Enabled: getEnvBool("API_CORS_ENABLED", true),
				Origins: []string{"*"},
			},
		},
		Scheduler: SchedulerConfig{
			DefaultTimeout:     getEnvDuration("SCHEDULER_TIMEOUT", 30*time.Second),
			MaxIterations:      getEnvInt("SCHEDULER_MAX_ITERATIONS", 10000),
			MaxNodes:           getEnvInt("SCHEDULER_MAX_NODES", 200000),
			Seed:               int64(getEnvInt("SCHEDULER_SEED", 1)),
			CeilingWindow:      getEnvInt("SCHEDULER_CEILING_WINDOW", 4),
			CeilingHours:       getEnvFloat("SCHEDULER_CEILING_HOURS", 80.0),
			MaxConsecutiveDays: getEnvInt("SCHEDULER_MAX_CONSECUTIVE_DAYS", 6),
			WorkloadTolerance:  getEnvFloat("SCHEDULER_WORKLOAD_TOLERANCE", 0.15),
		},
		Optimizer: OptimizerConfig{
			Divisions:        getEnvInt("OPTIMIZER_DIVISIONS", 6),
			NeighborhoodSize: getEnvInt("OPTIMIZER_NEIGHBORHOOD", 10),
			Generations:      getEnvInt("OPTIMIZER_GENERATIONS", 100),
			Workers:          getEnvInt("OPTIMIZER_WORKERS", 4),
			Scalarizer:       getEnv("OPTIMIZER_SCALARIZER", "tchebycheff"),
			ArchiveCapacity:  getEnvInt("OPTIMIZER_ARCHIVE_CAPACITY", 50),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsTest 检查是否为测试环境
func (c *Config) IsTest() bool {
	return c.App.Env == "test"
}

// 辅助函数
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
