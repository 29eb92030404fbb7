package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"     validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Task      TaskConfig      `mapstructure:"task"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains the relational database settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// RedisConfig contains the task store connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"   validate:"gte=0"`
}

// AuthConfig contains authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// TaskConfig tunes the task orchestration core.
type TaskConfig struct {
	// RetentionDays is how long finished task records are kept before the
	// cleanup sweep removes them.
	RetentionDays int `mapstructure:"retention_days" validate:"gte=0"`

	// BroadcastBuffer is the per-subscriber capacity of the progress
	// broadcast channel.
	BroadcastBuffer int `mapstructure:"broadcast_buffer" validate:"gte=0"`
}

// SchedulerConfig controls the background cron scheduler.
type SchedulerConfig struct {
	// Enabled turns the recurring jobs and the startup sequence on.
	// Disabled in one-off tooling and most tests.
	Enabled bool `mapstructure:"enabled"`
}

// DownloadsConfig contains the episode download settings.
type DownloadsConfig struct {
	// Dir is the root directory downloaded episodes are stored under.
	Dir string `mapstructure:"dir"`
}
