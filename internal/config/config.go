// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Engine holds the tunables for the room and matchmaking services. All of
// them come from environment variables with production defaults, so a bare
// process starts with sane behavior.
type Engine struct {
	// InactivityTimeout is how long a room may sit idle before the sweep
	// force-closes it.
	InactivityTimeout time.Duration
	// SweepInterval is how often the inactivity sweep scans the store.
	SweepInterval time.Duration
	// AcceptWindow is how long match participants have to accept a proposal.
	AcceptWindow time.Duration
	// MatcherInterval is how often the matcher re-scans the queues; proposals
	// are also attempted eagerly on every enqueue.
	MatcherInterval time.Duration
	// RoomListInterval is how often the global room list snapshot is
	// broadcast to subscribers of the list topic.
	RoomListInterval time.Duration
	// StartCountdownSec is the pre-game countdown broadcast before
	// gameStarted fires.
	StartCountdownSec int
	// TeamBalanceThreshold is the maximum tolerated |red - blue| size
	// difference for non-host team changes.
	TeamBalanceThreshold int
}

// FromEnv reads the engine tunables from the environment.
func FromEnv() Engine {
	return Engine{
		InactivityTimeout:    getEnvDuration("ROOM_INACTIVITY_TIMEOUT", 30*time.Minute),
		SweepInterval:        getEnvDuration("ROOM_SWEEP_INTERVAL", 5*time.Minute),
		AcceptWindow:         getEnvDuration("MATCH_ACCEPT_WINDOW", 30*time.Second),
		MatcherInterval:      getEnvDuration("MATCHER_INTERVAL", 2*time.Second),
		RoomListInterval:     getEnvDuration("ROOM_LIST_INTERVAL", 5*time.Second),
		StartCountdownSec:    getEnvInt("GAME_START_COUNTDOWN_SEC", 3),
		TeamBalanceThreshold: getEnvInt("TEAM_BALANCE_THRESHOLD", 1),
	}
}

// ListenAddr returns the HTTP listen address, honoring PORT.
func ListenAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration is a helper to parse an environment variable as a duration, else a default value.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetEnv exposes the string getter for other packages (redis addr, pg dsn).
func GetEnv(key, def string) string { return getEnv(key, def) }

// GetEnvInt exposes the int getter.
func GetEnvInt(key string, def int) int { return getEnvInt(key, def) }
