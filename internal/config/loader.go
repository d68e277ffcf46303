package config

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/genlab/seqmeta/internal/db"
)

// Config is the full service configuration: HTTP server, database, request
// loaders and the export worker pool.
type Config struct {
	Server   Server
	Database db.Config
	Loader   Loader
	Export   Export
}

// Server holds HTTP listener settings.
type Server struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Export holds the export worker pool settings.
type Export struct {
	Directory  string
	Workers    int
	QueueSize  int
	PageSize   int
	JobTimeout time.Duration
}

// Loader holds request batching settings. Zero limits mean unbounded.
type Loader struct {
	Wait       time.Duration
	BatchLimit int
	GroupLimit int
}

// Default returns the configuration used when no file or env override is set.
func Default() Config {
	return Config{
		Server: Server{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Database: db.DefaultConfig(),
		Loader: Loader{
			Wait: 5 * time.Millisecond,
		},
		Export: Export{
			Workers:    2,
			QueueSize:  64,
			PageSize:   1000,
			JobTimeout: 30 * time.Minute,
		},
	}
}

// Load reads config.yaml from configPath and applies environment overrides.
// Env vars use the SEQMETA prefix with dots mapped to underscores, so
// SEQMETA_DATABASE_HOST overrides database.host. A missing file is not an
// error; defaults and env vars apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(filepath.Join(configPath, "config"))
	v.SetEnvPrefix("SEQMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Println("[Config] no config.yaml found, using defaults and env vars")
	} else {
		log.Printf("[Config] loaded %s", v.ConfigFileUsed())
	}

	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}
	if v.IsSet("server.shutdown_timeout") {
		cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.path") {
		cfg.Database.Path = v.GetString("database.path")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt("database.max_conns")
	}

	if v.IsSet("loader.wait") {
		cfg.Loader.Wait = v.GetDuration("loader.wait")
	}
	if v.IsSet("loader.batch_limit") {
		cfg.Loader.BatchLimit = v.GetInt("loader.batch_limit")
	}
	if v.IsSet("loader.group_limit") {
		cfg.Loader.GroupLimit = v.GetInt("loader.group_limit")
	}

	if v.IsSet("export.directory") {
		cfg.Export.Directory = v.GetString("export.directory")
	}
	if v.IsSet("export.workers") {
		cfg.Export.Workers = v.GetInt("export.workers")
	}
	if v.IsSet("export.queue_size") {
		cfg.Export.QueueSize = v.GetInt("export.queue_size")
	}
	if v.IsSet("export.page_size") {
		cfg.Export.PageSize = v.GetInt("export.page_size")
	}
	if v.IsSet("export.job_timeout") {
		cfg.Export.JobTimeout = v.GetDuration("export.job_timeout")
	}

	return cfg, nil
}
