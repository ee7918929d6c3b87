package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddr        = "127.0.0.1:8000"
	defaultAudioDir          = "mp3_files"
	defaultRefreshDebounceMS = 500

	defaultStationName        = "Home Radio"
	defaultStationGenre       = "Various"
	defaultStationDescription = "Personal radio streamed from the local audio library."

	// DefaultAssumedBitrate is the constant bitrate used to turn elapsed time into a byte offset.
	DefaultAssumedBitrate = 128000
	// DefaultChunkSize bounds each read so selection changes are noticed promptly.
	DefaultChunkSize = 64 * 1024

	defaultPacingBurst    = 10 * time.Second
	defaultImportTimeout  = 2 * time.Minute
	defaultImportMaxBytes = 200 << 20
)

// Stream modes.
const (
	ModeSync     = "sync"
	ModeOnDemand = "ondemand"
)

// LoadDotEnv loads KEY=VALUE pairs from path (".env" when empty) without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// ResolveAudioRoot returns the directory that holds the station's audio files.
// The directory is created when it does not yet exist.
func ResolveAudioRoot() (string, error) {
	dir := strings.TrimSpace(os.Getenv("RADIO_AUDIO_DIR"))
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(cwd, defaultAudioDir)
	}

	abs, err := expandPath(dir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", err
	}

	return abs, nil
}

// ListenAddr returns the TCP address the HTTP server should bind to.
func ListenAddr() string {
	addr := strings.TrimSpace(os.Getenv("RADIO_LISTEN_ADDR"))
	if addr == "" {
		return defaultListenAddr
	}
	return addr
}

// AllowRemote reports whether binding to non-loopback addresses was explicitly enabled.
func AllowRemote() bool {
	return boolEnv("RADIO_ALLOW_REMOTE", false)
}

// ValidateListenAddr ensures the listen address is restricted to localhost
// unless remote listeners were allowed.
func ValidateListenAddr(addr string, allowRemote bool) error {
	if allowRemote {
		return nil
	}
	addr = strings.TrimSpace(strings.ToLower(addr))
	if strings.HasPrefix(addr, "127.0.0.1:") || strings.HasPrefix(addr, "localhost:") || strings.HasPrefix(addr, "[::1]:") {
		return nil
	}
	return errors.New("listen address must bind to localhost unless RADIO_ALLOW_REMOTE=1")
}

// RefreshDebounce returns the delay before the metadata index is refreshed
// after file-system change events.
func RefreshDebounce() time.Duration {
	value := strings.TrimSpace(os.Getenv("RADIO_REFRESH_DEBOUNCE_MS"))
	if value == "" {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}

	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return time.Duration(defaultRefreshDebounceMS) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

// ResolveTokenFile returns the absolute path to the operator token file when configured.
// The file is created if it does not already exist. When no file is configured the
// second return value is false.
func ResolveTokenFile() (string, bool, error) {
	path := strings.TrimSpace(os.Getenv("RADIO_TOKEN_FILE"))
	if path == "" {
		return "", false, nil
	}

	abs, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", false, err
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return "", false, err
		}
		file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return "", false, err
		}
		if err := file.Close(); err != nil {
			return "", false, err
		}
	}

	return abs, true, nil
}

// Logging holds the logger settings.
type Logging struct {
	Level  string
	Format string
	File   string
}

// ResolveLogging reads the logger settings from the environment.
func ResolveLogging() Logging {
	return Logging{
		Level:  strings.TrimSpace(os.Getenv("RADIO_LOG_LEVEL")),
		Format: strings.TrimSpace(os.Getenv("RADIO_LOG_FORMAT")),
		File:   strings.TrimSpace(os.Getenv("RADIO_LOG_FILE")),
	}
}

// Station describes how the broadcast is presented and paced.
type Station struct {
	Name        string
	Genre       string
	Description string

	// AssumedBitrate is in bits per second. Variable bitrate files drift against it.
	AssumedBitrate int
	ChunkSize      int
	DefaultMode    string

	Pacing      bool
	PacingBurst time.Duration

	ImportTimeout  time.Duration
	ImportMaxBytes int64
}

type stationYAML struct {
	Name           string `yaml:"name"`
	Genre          string `yaml:"genre"`
	Description    string `yaml:"description"`
	AssumedBitrate int    `yaml:"assumed_bitrate"`
	ChunkSize      int    `yaml:"chunk_size"`
	DefaultMode    string `yaml:"default_mode"`
	Pacing         *bool  `yaml:"pacing"`
	PacingBurst    string `yaml:"pacing_burst"`
	ImportTimeout  string `yaml:"import_timeout"`
	ImportMaxBytes int64  `yaml:"import_max_bytes"`
}

// ResolveStation returns the station settings after applying defaults,
// the YAML file named by RADIO_CONFIG (when set), and environment overrides.
func ResolveStation() (Station, error) {
	st := Station{
		Name:           defaultStationName,
		Genre:          defaultStationGenre,
		Description:    defaultStationDescription,
		AssumedBitrate: DefaultAssumedBitrate,
		ChunkSize:      DefaultChunkSize,
		DefaultMode:    ModeSync,
		PacingBurst:    defaultPacingBurst,
		ImportTimeout:  defaultImportTimeout,
		ImportMaxBytes: defaultImportMaxBytes,
	}

	if configPath := strings.TrimSpace(os.Getenv("RADIO_CONFIG")); configPath != "" {
		if err := applyStationFile(&st, configPath); err != nil {
			return Station{}, err
		}
	}

	if value := strings.TrimSpace(os.Getenv("RADIO_STATION_NAME")); value != "" {
		st.Name = value
	}
	if value := strings.TrimSpace(os.Getenv("RADIO_STATION_GENRE")); value != "" {
		st.Genre = value
	}
	if value := strings.TrimSpace(os.Getenv("RADIO_STATION_DESCRIPTION")); value != "" {
		st.Description = value
	}
	st.AssumedBitrate = intEnv("RADIO_ASSUMED_BITRATE", st.AssumedBitrate)
	st.ChunkSize = intEnv("RADIO_CHUNK_SIZE", st.ChunkSize)
	if value := strings.TrimSpace(os.Getenv("RADIO_DEFAULT_MODE")); value != "" {
		st.DefaultMode = strings.ToLower(value)
	}
	st.Pacing = boolEnv("RADIO_PACING", st.Pacing)
	st.PacingBurst = durationEnv("RADIO_PACING_BURST", st.PacingBurst)
	st.ImportTimeout = durationEnv("RADIO_IMPORT_TIMEOUT", st.ImportTimeout)
	st.ImportMaxBytes = int64(intEnv("RADIO_IMPORT_MAX_BYTES", int(st.ImportMaxBytes)))

	if err := st.Validate(); err != nil {
		return Station{}, err
	}
	return st, nil
}

// Validate rejects settings the streaming engine cannot work with.
func (s Station) Validate() error {
	if s.AssumedBitrate <= 0 {
		return fmt.Errorf("assumed bitrate must be positive, got %d", s.AssumedBitrate)
	}
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", s.ChunkSize)
	}
	if s.DefaultMode != ModeSync && s.DefaultMode != ModeOnDemand {
		return fmt.Errorf("default mode must be %q or %q, got %q", ModeSync, ModeOnDemand, s.DefaultMode)
	}
	if s.PacingBurst < 0 {
		return fmt.Errorf("pacing burst must not be negative")
	}
	if s.ImportMaxBytes <= 0 {
		return fmt.Errorf("import size limit must be positive")
	}
	return nil
}

func applyStationFile(st *Station, path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return err
	}

	var file stationYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", resolved, err)
	}

	if value := strings.TrimSpace(file.Name); value != "" {
		st.Name = value
	}
	if value := strings.TrimSpace(file.Genre); value != "" {
		st.Genre = value
	}
	if value := strings.TrimSpace(file.Description); value != "" {
		st.Description = value
	}
	if file.AssumedBitrate != 0 {
		st.AssumedBitrate = file.AssumedBitrate
	}
	if file.ChunkSize != 0 {
		st.ChunkSize = file.ChunkSize
	}
	if value := strings.TrimSpace(file.DefaultMode); value != "" {
		st.DefaultMode = strings.ToLower(value)
	}
	if file.Pacing != nil {
		st.Pacing = *file.Pacing
	}
	if value := strings.TrimSpace(file.PacingBurst); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("pacing_burst: %w", err)
		}
		st.PacingBurst = d
	}
	if value := strings.TrimSpace(file.ImportTimeout); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("import_timeout: %w", err)
		}
		st.ImportTimeout = d
	}
	if file.ImportMaxBytes != 0 {
		st.ImportMaxBytes = file.ImportMaxBytes
	}
	return nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return filepath.Abs(path)
}

func intEnv(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
