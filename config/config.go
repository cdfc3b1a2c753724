package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	MusicRoot string // Root directory of the indexed music collection
	DataDir   string // Directory for persisted snapshots and cache indexes

	ServerPort string // HTTP listen port for the streaming server

	// Session settings
	HeartbeatTimeout time.Duration // Sessions with no heartbeat within this window expire
	MaxSessions      int           // Maximum concurrent device sessions
	JWTSecret        string        // Signing secret for session tokens

	// Scan settings
	DebounceWindow  time.Duration // Quiet period after the last filesystem event before a rescan
	PruneGraceScans int           // Scans a cached metadata entry may go unseen before pruning
	TieBreak        string        // Duplicate tie-break order, comma separated (bitrate,completeness,added)

	// Client cache settings
	CacheDir     string // Directory for the client-side content cache
	CacheLimitMB int    // Client cache size limit in megabytes
	CacheEnabled bool   // Whether the client cache accepts new writes

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration ("2s", "1m") or
// returns a default value.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load does not override variables already set in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	home, _ := os.UserHomeDir()
	dataDir := getEnv("DATA_DIR", filepath.Join(home, ".ariami"))

	return &Config{
		MusicRoot: getEnv("MUSIC_ROOT", filepath.Join(home, "Music")),
		DataDir:   dataDir,

		ServerPort: getEnv("SERVER_PORT", "8080"),

		HeartbeatTimeout: getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second),
		MaxSessions:      getEnvInt("MAX_SESSIONS", 16),
		JWTSecret:        getEnv("JWT_SECRET", "ariami-dev-secret"),

		DebounceWindow:  getEnvDuration("SCAN_DEBOUNCE_WINDOW", 2*time.Second),
		PruneGraceScans: getEnvInt("META_PRUNE_GRACE_SCANS", 3),
		TieBreak:        getEnv("DUPLICATE_TIE_BREAK", "bitrate,completeness,added"),

		CacheDir:     getEnv("CACHE_DIR", filepath.Join(dataDir, "cache")),
		CacheLimitMB: getEnvInt("CACHE_LIMIT_MB", 512),
		CacheEnabled: getEnvBool("CACHE_ENABLED", true),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
