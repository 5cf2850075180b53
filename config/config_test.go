package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xiaqy71/myWebServer/logger"
)

const sampleINI = `threadNum = 6

[server]
port = 9006
trigMode = 3
timeoutMS = 60000
OptLinger = false

[mysql]
port = 3306
user = root
password = secret
database = webserver
connPoolNum = 12

[log]
open = true
logLevel = INFO
logQueueSize = 1024
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadINI(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.ini", sampleINI))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9006 || cfg.Server.TrigMode != 3 || cfg.Server.TimeoutMS != 60000 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.ThreadNum != 6 {
		t.Errorf("Expected top-level threadNum 6, got %d", cfg.Server.ThreadNum)
	}
	if cfg.Server.OptLinger {
		t.Error("Expected OptLinger false")
	}
	if cfg.MySQL.Host != "localhost" || cfg.MySQL.User != "root" || cfg.MySQL.ConnPoolNum != 12 {
		t.Errorf("Unexpected mysql config: %+v", cfg.MySQL)
	}
	if !cfg.Log.Open || cfg.LogLevel() != logger.LevelInfo || cfg.Log.QueueSize != 1024 {
		t.Errorf("Unexpected log config: %+v", cfg.Log)
	}
	if cfg.Server.SrcDir != "resources" || cfg.Server.MaxConnections != 65536 {
		t.Errorf("Expected defaults, got srcDir=%q max=%d", cfg.Server.SrcDir, cfg.Server.MaxConnections)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WEBSERVER_SERVER_PORT", "10000")
	t.Setenv("WEBSERVER_MYSQL_HOST", "db.internal")

	cfg, err := Load(writeFile(t, "config.ini", sampleINI))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 10000 {
		t.Errorf("Expected env port 10000, got %d", cfg.Server.Port)
	}
	if cfg.MySQL.Host != "db.internal" {
		t.Errorf("Expected env host, got %q", cfg.MySQL.Host)
	}
}

func TestParseFlags(t *testing.T) {
	path := writeFile(t, "config.ini", sampleINI)
	cfg, err := Parse([]string{"-config", path, "-port", "8081", "-resources", "/srv/www"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.Port != 8081 || cfg.Server.SrcDir != "/srv/www" {
		t.Errorf("Expected flag overrides, got port=%d srcDir=%q", cfg.Server.Port, cfg.Server.SrcDir)
	}
}

func TestLoadMissingKeys(t *testing.T) {
	content := strings.Replace(sampleINI, "user = root\n", "", 1)
	content = strings.Replace(content, "threadNum = 6\n", "", 1)

	_, err := Load(writeFile(t, "config.ini", content))
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("Expected ErrMissingKey, got %v", err)
	}
	if !strings.Contains(err.Error(), "mysql.user") {
		t.Errorf("Expected the missing key to be named, got %v", err)
	}

	content = strings.Replace(sampleINI, "threadNum = 6\n", "", 1)
	if _, err := Load(writeFile(t, "config.ini", content)); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Expected ErrMissingKey for threadNum, got %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"port":     strings.Replace(sampleINI, "port = 9006", "port = 80", 1),
		"trigMode": strings.Replace(sampleINI, "trigMode = 3", "trigMode = 9", 1),
		"level":    strings.Replace(sampleINI, "logLevel = INFO", "logLevel = LOUD", 1),
		"queue":    strings.Replace(sampleINI, "logQueueSize = 1024", "logQueueSize = -1", 1),
	}
	for name, content := range cases {
		if _, err := Load(writeFile(t, "config.ini", content)); !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", name, err)
		}
	}

	bad := strings.Replace(sampleINI, "timeoutMS = 60000", "timeoutMS = soon", 1)
	if _, err := Load(writeFile(t, "config.ini", bad)); err == nil {
		t.Error("Expected an error for a non-numeric timeoutMS")
	}
}

func TestLoadJSON(t *testing.T) {
	content := `{
  "server": {"port": 9007, "trigMode": 1, "timeoutMS": 0, "OptLinger": true, "threadNum": 2},
  "mysql": {"port": 3306, "user": "u", "password": "p", "database": "d", "connPoolNum": 1},
  "log": {"open": false, "logLevel": "debug", "logQueueSize": 0}
}`
	cfg, err := Load(writeFile(t, "config.json", content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9007 || !cfg.Server.OptLinger || cfg.Server.ThreadNum != 2 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.LogLevel() != logger.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.LogLevel())
	}
}

func TestManagerKeysCaseInsensitive(t *testing.T) {
	m := NewManager()
	m.Set("Server.TrigMode", "2")

	if got := m.GetInt("server.trigmode"); got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}
	if got := m.GetString("SERVER.TRIGMODE"); got != "2" {
		t.Errorf("Expected %q, got %q", "2", got)
	}
	if !m.GetBool("missing", true) {
		t.Error("Expected default for a missing key")
	}
	if err := m.Require("server.trigMode", "server.port"); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Expected ErrMissingKey, got %v", err)
	}
}
