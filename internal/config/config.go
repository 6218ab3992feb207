package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	RsyncBinary   string   `yaml:"rsync_binary"`
	FclonesBinary string   `yaml:"fclones_binary"`
	DBPath        string   `yaml:"db_path"`
	LogDir        string   `yaml:"log_dir"`
	CaptureDir    string   `yaml:"capture_dir"`    // Where transfer output is captured for analysis
	DefaultRemote string   `yaml:"default_remote"` // e.g. "media@nas:/srv/media/"
	RemoteSudo    bool     `yaml:"remote_sudo"`
	RetentionDays int      `yaml:"retention_days"`
	Protect       []string `yaml:"protect"` // Globs never deleted after a push

	path string
}

// Path returns the config file the values were read from, if any
func (c *Config) Path() string {
	return c.path
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(configHome(), "shuttle", "config.yaml")
}

// Defaults returns the configuration used when nothing else is set
func Defaults() *Config {
	data := filepath.Join(dataHome(), "shuttle")
	return &Config{
		RsyncBinary:   "rsync",
		FclonesBinary: "fclones",
		DBPath:        filepath.Join(data, "shuttle.db"),
		LogDir:        filepath.Join(data, "logs"),
		CaptureDir:    filepath.Join(os.TempDir(), "shuttle"),
		RetentionDays: 90,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (a missing file is not an error), then SHUTTLE_* environment variables.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultPath()
	}
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML(data, cfg); err != nil {
			return nil, errors.Errorf("parsing %s: %w", path, err)
		}
		cfg.path = path
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, errors.Errorf("reading config file: %w", err)
	}

	applyEnv(cfg)

	cfg.DBPath = ExpandPath(cfg.DBPath)
	cfg.LogDir = ExpandPath(cfg.LogDir)
	cfg.CaptureDir = ExpandPath(cfg.CaptureDir)

	if cfg.RetentionDays < 1 {
		return nil, errors.Errorf("retention_days must be at least 1, got %d", cfg.RetentionDays)
	}

	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(cfg)
}

func applyEnv(cfg *Config) {
	cfg.RsyncBinary = getEnv("SHUTTLE_RSYNC_BINARY", cfg.RsyncBinary)
	cfg.FclonesBinary = getEnv("SHUTTLE_FCLONES_BINARY", cfg.FclonesBinary)
	cfg.DBPath = getEnv("SHUTTLE_DB_PATH", cfg.DBPath)
	cfg.LogDir = getEnv("SHUTTLE_LOG_DIR", cfg.LogDir)
	cfg.CaptureDir = getEnv("SHUTTLE_CAPTURE_DIR", cfg.CaptureDir)
	cfg.DefaultRemote = getEnv("SHUTTLE_DEFAULT_REMOTE", cfg.DefaultRemote)
	cfg.RemoteSudo = getEnvBool("SHUTTLE_REMOTE_SUDO", cfg.RemoteSudo)
	cfg.RetentionDays = getEnvInt("SHUTTLE_RETENTION_DAYS", cfg.RetentionDays)

	// Comma-separated protect globs replace the file's list
	if globs := getEnv("SHUTTLE_PROTECT", ""); globs != "" {
		cfg.Protect = nil
		for _, g := range strings.Split(globs, ",") {
			g = strings.TrimSpace(g)
			if g != "" {
				cfg.Protect = append(cfg.Protect, g)
			}
		}
	}
}

// ExpandPath expands a leading ~ to the user's home directory and cleans the path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return filepath.Clean(path)
}

func configHome() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
