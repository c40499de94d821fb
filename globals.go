package main

import (
	"crypto/ed25519"
	"database/sql"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// --- Configuration ---

type Settings struct {
	Addr             string        `env:"OMEGA_ADDR" envDefault:":8080"`
	DBPath           string        `env:"OMEGA_DB_PATH" envDefault:"./data/omega.db"`
	DBDriver         string        `env:"OMEGA_DB_DRIVER" envDefault:"sqlite3"` // sqlite3 (cgo) or sqlite (pure Go)
	LogDir           string        `env:"OMEGA_LOG_DIR" envDefault:"./logs"`
	Debug            bool          `env:"OMEGA_LOG_DEBUG"`
	AdminToken       string        `env:"OMEGA_ADMIN_TOKEN"`
	ShipCost         int64         `env:"OMEGA_SHIP_COST" envDefault:"10"`
	StartingCredits  int64         `env:"OMEGA_STARTING_CREDITS" envDefault:"1000"`
	RateLimit        float64       `env:"OMEGA_RATE_LIMIT" envDefault:"10"`
	RateBurst        int           `env:"OMEGA_RATE_BURST" envDefault:"20"`
	SnapshotInterval time.Duration `env:"OMEGA_SNAPSHOT_INTERVAL" envDefault:"10m"`
	LogMoves         bool          `env:"OMEGA_LOG_MOVES" envDefault:"true"`
}

var (
	// Infrastructure
	db        *sql.DB
	zapLogger *zap.Logger
	InfoLog   *log.Logger
	ErrorLog  *log.Logger
	hub       *Hub

	// Identity
	ServerUUID  string
	GenesisHash string
	PrivateKey  ed25519.PrivateKey
	PublicKey   ed25519.PublicKey

	Config Settings

	// Serialises every state-changing action, the way a block processes
	// one transaction at a time.
	stateLock sync.Mutex

	// Rate Limiting
	ipLimiters = make(map[string]*rate.Limiter)
	ipLock     sync.Mutex
)

// --- Ledger Action Types ---

const (
	ActionOrganizerSet   = "ORGANIZER_SET"
	ActionLootCrate      = "LOOT_CRATE"
	ActionShipRegistered = "SHIP_REGISTERED"
	ActionFleetDefense   = "FLEET_DEFENSE"
	ActionFleetOffense   = "FLEET_OFFENSE"
	ActionEngagement     = "ENGAGEMENT"
)

// --- Phrases mixed into randomness ---

const (
	phraseEngagement = "engagement_roll"
	phraseCommander  = "commander_roll"
)

const (
	roleDefense = "defense"
	roleOffense = "offense"
)

const leaderboardSize = 50
