package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// ErrMissingKey is returned by Require for absent keys.
var ErrMissingKey = errors.New("missing config key")

// Manager manages application configuration as a flat set of dotted,
// case-insensitive keys ("server.port", "mysql.user").
type Manager struct {
	values map[string]interface{}
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values: make(map[string]interface{}),
	}
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[normalize(key)] = value
}

// Get gets a configuration value
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[normalize(key)]
	return value, exists
}

// Has reports whether key is set.
func (m *Manager) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Require fails with ErrMissingKey naming every absent key.
func (m *Manager) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !m.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(missing, ", "))
	}
	return nil
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string, defaultValue ...string) string {
	if value, exists := m.Get(key); exists {
		if str, ok := value.(string); ok {
			return str
		}
		return fmt.Sprintf("%v", value)
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return i
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetBool gets a boolean configuration value
func (m *Manager) GetBool(key string, defaultValue ...bool) bool {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return parseBool(v)
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return false
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1", "on":
		return true
	}
	return false
}

// LoadFromEnv loads configuration from environment variables.
// WEBSERVER_SERVER_PORT becomes server.port.
func (m *Manager) LoadFromEnv(prefix string) {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := parts[0]
		value := parts[1]

		if prefix != "" && !strings.HasPrefix(key, prefix+"_") {
			continue
		}
		if prefix != "" {
			key = strings.TrimPrefix(key, prefix+"_")
		}

		key = strings.ReplaceAll(key, "_", ".")
		m.Set(key, value)
	}
}

// LoadFromINI loads an INI file. Keys in a [section] become section.key;
// keys before the first section stay top-level.
func (m *Manager) LoadFromINI(filename string) error {
	f, err := ini.Load(filename)
	if err != nil {
		return fmt.Errorf("failed to load INI config: %w", err)
	}

	for _, section := range f.Sections() {
		prefix := ""
		if section.Name() != ini.DefaultSection {
			prefix = section.Name()
		}
		for _, key := range section.Keys() {
			fullKey := key.Name()
			if prefix != "" {
				fullKey = prefix + "." + fullKey
			}
			m.Set(fullKey, key.Value())
		}
	}
	return nil
}

// LoadFromJSON loads configuration from JSON file
func (m *Manager) LoadFromJSON(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse JSON config: %w", err)
	}

	m.loadFromMap("", values)
	return nil
}

// LoadFile picks the loader by extension: .json is JSON, anything else INI.
func (m *Manager) LoadFile(filename string) error {
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		return m.LoadFromJSON(filename)
	}
	return m.LoadFromINI(filename)
}

// loadFromMap recursively loads configuration from a map
func (m *Manager) loadFromMap(prefix string, values map[string]interface{}) {
	for key, value := range values {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			m.loadFromMap(fullKey, nested)
		} else {
			m.Set(fullKey, value)
		}
	}
}

// Unmarshal copies the keys under prefix into the fields of target, a
// pointer to struct. Fields are matched by `config` tag or lowercased name.
func (m *Manager) Unmarshal(prefix string, target interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}

	targetValue = targetValue.Elem()
	if targetValue.Kind() != reflect.Struct {
		return fmt.Errorf("target must be a pointer to struct")
	}

	targetType := targetValue.Type()

	for i := 0; i < targetType.NumField(); i++ {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)

		if !fieldValue.CanSet() {
			continue
		}

		configKey := field.Tag.Get("config")
		if configKey == "-" {
			continue
		}
		if configKey == "" {
			configKey = field.Name
		}
		if prefix != "" {
			configKey = prefix + "." + configKey
		}
		configKey = normalize(configKey)

		value, exists := m.values[configKey]
		if !exists {
			continue
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("config key %s: %w", configKey, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value from an interface{} value
func setFieldValue(field reflect.Value, value interface{}) error {
	switch field.Kind() {
	case reflect.String:
		if str, ok := value.(string); ok {
			field.SetString(str)
		} else {
			field.SetString(fmt.Sprintf("%v", value))
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := value.(type) {
		case int:
			field.SetInt(int64(v))
		case int64:
			field.SetInt(v)
		case float64:
			field.SetInt(int64(v))
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer %q", v)
			}
			field.SetInt(i)
		default:
			return fmt.Errorf("cannot convert %T to %v", value, field.Type())
		}

	case reflect.Bool:
		switch v := value.(type) {
		case bool:
			field.SetBool(v)
		case string:
			field.SetBool(parseBool(v))
		case int:
			field.SetBool(v != 0)
		case float64:
			field.SetBool(v != 0)
		default:
			return fmt.Errorf("cannot convert %T to bool", value)
		}

	default:
		valueReflect := reflect.ValueOf(value)
		if valueReflect.Type().ConvertibleTo(field.Type()) {
			field.Set(valueReflect.Convert(field.Type()))
		} else {
			return fmt.Errorf("cannot convert %v to %v", valueReflect.Type(), field.Type())
		}
	}

	return nil
}

// GetAll returns all configuration values
func (m *Manager) GetAll() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}

	return result
}
