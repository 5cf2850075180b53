package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/xiaqy71/myWebServer/logger"
)

// EnvPrefix prefixes environment overrides: WEBSERVER_SERVER_PORT=9006.
const EnvPrefix = "WEBSERVER"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// requiredKeys must be present after file and environment are loaded.
var requiredKeys = []string{
	"server.port",
	"server.trigMode",
	"server.timeoutMS",
	"server.OptLinger",
	"mysql.port",
	"mysql.user",
	"mysql.password",
	"mysql.database",
	"mysql.connPoolNum",
	"log.open",
	"log.logLevel",
	"log.logQueueSize",
}

// ServerConfig configures the listener and reactor.
type ServerConfig struct {
	Port           int    `config:"port"`
	TrigMode       int    `config:"trigMode"`
	TimeoutMS      int    `config:"timeoutMS"`
	OptLinger      bool   `config:"OptLinger"`
	ThreadNum      int    `config:"threadNum"`
	SrcDir         string `config:"srcDir"`
	MaxConnections int    `config:"maxConnections"`
}

// MySQLConfig configures the credential database.
type MySQLConfig struct {
	Host        string `config:"host"`
	Port        int    `config:"port"`
	User        string `config:"user"`
	Password    string `config:"password"`
	Database    string `config:"database"`
	ConnPoolNum int    `config:"connPoolNum"`
}

// LogConfig configures the log sink.
type LogConfig struct {
	Open      bool   `config:"open"`
	Level     string `config:"logLevel"`
	QueueSize int    `config:"logQueueSize"`
	Dir       string `config:"dir"`
}

// Config holds all application configuration.
type Config struct {
	Server ServerConfig
	MySQL  MySQLConfig
	Log    LogConfig
}

// New loads configuration from the command line: -config names the file,
// -resources and -port override the file.
func New() (*Config, error) {
	return Parse(os.Args[1:])
}

// Parse is New with explicit arguments.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("webserver", flag.ContinueOnError)
	path := fs.String("config", "config.ini", "Config file (INI, or JSON by extension)")
	resources := fs.String("resources", "", "Static resource directory (overrides server.srcDir)")
	port := fs.Int("port", 0, "HTTP server port (overrides server.port)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	m := NewManager()
	if err := m.LoadFile(*path); err != nil {
		return nil, err
	}
	m.LoadFromEnv(EnvPrefix)
	if *resources != "" {
		m.Set("server.srcDir", *resources)
	}
	if *port != 0 {
		m.Set("server.port", *port)
	}

	return FromManager(m)
}

// Load reads a config file and applies environment overrides.
func Load(path string) (*Config, error) {
	m := NewManager()
	if err := m.LoadFile(path); err != nil {
		return nil, err
	}
	m.LoadFromEnv(EnvPrefix)
	return FromManager(m)
}

// FromManager requires, decodes and validates the loaded keys.
func FromManager(m *Manager) (*Config, error) {
	if err := m.Require(requiredKeys...); err != nil {
		return nil, err
	}
	// threadNum may live in [server] or before the first section.
	if !m.Has("server.threadNum") {
		if !m.Has("threadNum") {
			return nil, fmt.Errorf("%w: server.threadNum", ErrMissingKey)
		}
		m.Set("server.threadNum", m.GetInt("threadNum"))
	}

	cfg := &Config{
		Server: ServerConfig{SrcDir: "resources", MaxConnections: 65536},
		MySQL:  MySQLConfig{Host: "localhost"},
		Log:    LogConfig{Dir: "log"},
	}
	if err := m.Unmarshal("server", &cfg.Server); err != nil {
		return nil, err
	}
	if err := m.Unmarshal("mysql", &cfg.MySQL); err != nil {
		return nil, err
	}
	if err := m.Unmarshal("log", &cfg.Log); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1024 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range 1024-65535", ErrInvalid, c.Server.Port)
	case c.Server.TrigMode < 0 || c.Server.TrigMode > 3:
		return fmt.Errorf("%w: server.trigMode %d out of range 0-3", ErrInvalid, c.Server.TrigMode)
	case c.Server.ThreadNum < 1:
		return fmt.Errorf("%w: server.threadNum must be at least 1", ErrInvalid)
	case c.Server.MaxConnections < 1:
		return fmt.Errorf("%w: server.maxConnections must be at least 1", ErrInvalid)
	case c.MySQL.Port < 1 || c.MySQL.Port > 65535:
		return fmt.Errorf("%w: mysql.port %d out of range", ErrInvalid, c.MySQL.Port)
	case c.MySQL.ConnPoolNum < 1:
		return fmt.Errorf("%w: mysql.connPoolNum must be at least 1", ErrInvalid)
	case c.Log.QueueSize < 0:
		return fmt.Errorf("%w: log.logQueueSize must not be negative", ErrInvalid)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.logLevel: %v", ErrInvalid, err)
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logger.Level {
	level, err := logger.ParseLevel(c.Log.Level)
	if err != nil {
		return logger.LevelInfo
	}
	return level
}
