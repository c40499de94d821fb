package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"newomega/pkg/core"
	"newomega/pkg/game"
	"newomega/pkg/types"
)

var (
	errPlayerNotFound              = errors.New("player not found")
	errCommanderNotFound           = errors.New("commander not found")
	errOrganizerNotSet             = errors.New("organizer not set")
	errOffensiveFleetNotRegistered = errors.New("offensive fleet not registered")
	errDefensiveFleetNotRegistered = errors.New("defensive fleet not registered")
	errInvalidFleet                = errors.New("invalid fleet")
	errLogNotFound                 = errors.New("engagement log not found")
	errBadRequest                  = errors.New("bad request")
	errUnauthorized                = errors.New("missing account")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS system_meta (key TEXT PRIMARY KEY, value TEXT);

CREATE TABLE IF NOT EXISTS players (
	account TEXT PRIMARY KEY,
	credits INTEGER DEFAULT 0,
	ranked_wins INTEGER DEFAULT 0,
	ranked_losses INTEGER DEFAULT 0,
	nonce INTEGER DEFAULT 0,
	next_ship_id INTEGER DEFAULT 0,
	next_engagement_id INTEGER DEFAULT 0,
	next_log_id INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ships (
	account TEXT, ship_id INTEGER,
	command_power INTEGER, hit_points INTEGER,
	attack_base INTEGER, attack_variable INTEGER, defence INTEGER,
	speed INTEGER, fire_range INTEGER,
	PRIMARY KEY (account, ship_id)
);

CREATE TABLE IF NOT EXISTS commanders (
	account TEXT, commander_id INTEGER, exp INTEGER DEFAULT 0,
	PRIMARY KEY (account, commander_id)
);

CREATE TABLE IF NOT EXISTS fleets (
	account TEXT, role TEXT, composition_json TEXT,
	PRIMARY KEY (account, role)
);

CREATE TABLE IF NOT EXISTS engagements (
	account TEXT, engagement_id INTEGER, target TEXT,
	result_blob BLOB, result_hash TEXT, created_at INTEGER,
	PRIMARY KEY (account, engagement_id)
);

CREATE TABLE IF NOT EXISTS engagement_logs (
	account TEXT, log_id INTEGER, moves INTEGER, log_blob BLOB,
	PRIMARY KEY (account, log_id)
);

CREATE TABLE IF NOT EXISTS ledger (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER, action_type TEXT,
	payload_hash TEXT, prev_hash TEXT, final_hash TEXT, signature BLOB
);

CREATE TABLE IF NOT EXISTS leaderboard_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	taken_at INTEGER, state_blob BLOB, final_hash TEXT
);
`

// dsnFor appends the WAL and busy timeout options in each driver's syntax.
func dsnFor(driver, path string) (string, error) {
	switch driver {
	case "sqlite3":
		return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case "sqlite":
		return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	}
	return "", fmt.Errorf("unknown database driver %q", driver)
}

func initDB() error {
	if err := os.MkdirAll(filepath.Dir(Config.DBPath), 0755); err != nil {
		return err
	}
	dsn, err := dsnFor(Config.DBDriver, Config.DBPath)
	if err != nil {
		return err
	}
	db, err = sql.Open(Config.DBDriver, dsn)
	if err != nil {
		return err
	}
	if err := createSchema(db); err != nil {
		return err
	}
	return initIdentity(db)
}

func createSchema(q querier) error {
	if _, err := q.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func initIdentity(q querier) error {
	var uuid string
	err := q.QueryRow("SELECT value FROM system_meta WHERE key='server_uuid'").Scan(&uuid)

	if errors.Is(err, sql.ErrNoRows) {
		InfoLog.Println("FIRST BOOT: Generating Identity...")

		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return err
		}
		rndBytes := make([]byte, 8)
		rand.Read(rndBytes)
		genesisData := fmt.Sprintf("GENESIS-%d-%x", time.Now().UnixNano(), rndBytes)
		uuid = core.Hash([]byte(genesisData))

		for key, value := range map[string]string{
			"server_uuid":  uuid,
			"genesis_hash": uuid,
			"priv_key":     hex.EncodeToString(priv),
			"pub_key":      hex.EncodeToString(pub),
		} {
			if _, err := q.Exec("INSERT INTO system_meta (key, value) VALUES (?, ?)", key, value); err != nil {
				return err
			}
		}
		PrivateKey, PublicKey = priv, pub
		ServerUUID, GenesisHash = uuid, uuid
		return nil
	}
	if err != nil {
		return err
	}

	var privHex, pubHex string
	q.QueryRow("SELECT value FROM system_meta WHERE key='priv_key'").Scan(&privHex)
	q.QueryRow("SELECT value FROM system_meta WHERE key='pub_key'").Scan(&pubHex)
	q.QueryRow("SELECT value FROM system_meta WHERE key='genesis_hash'").Scan(&GenesisHash)
	privBytes, _ := hex.DecodeString(privHex)
	pubBytes, _ := hex.DecodeString(pubHex)
	PrivateKey = ed25519.PrivateKey(privBytes)
	PublicKey = ed25519.PublicKey(pubBytes)
	ServerUUID = uuid
	return nil
}

// --- Meta ---

func getMeta(q querier, key string) (string, error) {
	var v string
	err := q.QueryRow("SELECT value FROM system_meta WHERE key=?", key).Scan(&v)
	return v, err
}

func setMeta(q querier, key, value string) error {
	_, err := q.Exec("INSERT OR REPLACE INTO system_meta (key, value) VALUES (?, ?)", key, value)
	return err
}

// --- Players ---

func ensurePlayer(q querier, account types.AccountID) error {
	_, err := q.Exec("INSERT OR IGNORE INTO players (account, credits) VALUES (?, ?)", string(account), Config.StartingCredits)
	return err
}

func loadPlayer(q querier, account types.AccountID) (types.PlayerData, int64, error) {
	var p types.PlayerData
	var credits int64
	err := q.QueryRow("SELECT ranked_wins, ranked_losses, credits FROM players WHERE account=?", string(account)).
		Scan(&p.RankedWins, &p.RankedLosses, &credits)
	if errors.Is(err, sql.ErrNoRows) {
		return p, 0, errPlayerNotFound
	}
	return p, credits, err
}

func markRankedWin(q querier, account types.AccountID) error {
	if err := ensurePlayer(q, account); err != nil {
		return err
	}
	_, err := q.Exec("UPDATE players SET ranked_wins=MIN(ranked_wins+1, 4294967295) WHERE account=?", string(account))
	return err
}

func markRankedLoss(q querier, account types.AccountID) error {
	if err := ensurePlayer(q, account); err != nil {
		return err
	}
	_, err := q.Exec("UPDATE players SET ranked_losses=MIN(ranked_losses+1, 4294967295) WHERE account=?", string(account))
	return err
}

// nextCounter hands out the current value of a per-player counter and bumps
// it, saturating at limit.
func nextCounter(q querier, account types.AccountID, column string, limit int64) (int64, error) {
	if err := ensurePlayer(q, account); err != nil {
		return 0, err
	}
	var id int64
	if err := q.QueryRow("SELECT "+column+" FROM players WHERE account=?", string(account)).Scan(&id); err != nil {
		return 0, err
	}
	_, err := q.Exec("UPDATE players SET "+column+"=MIN("+column+"+1, ?) WHERE account=?", limit, string(account))
	return id, err
}

// slashCredits removes up to amount credits, never going below zero.
func slashCredits(q querier, account types.AccountID, amount int64) error {
	_, err := q.Exec("UPDATE players SET credits=MAX(credits-?, 0) WHERE account=?", amount, string(account))
	return err
}

func leaderboard(q querier, limit int) ([]LeaderboardRow, error) {
	rows, err := q.Query(`SELECT account, ranked_wins, ranked_losses FROM players
	                      ORDER BY ranked_wins DESC, ranked_losses ASC, account ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	board := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		var account string
		if err := rows.Scan(&account, &r.RankedWins, &r.RankedLosses); err != nil {
			return nil, err
		}
		r.Account = types.AccountID(account)
		board = append(board, r)
	}
	return board, rows.Err()
}

// --- Ships ---

func insertShip(q querier, account types.AccountID, id types.ShipID, s types.Ship) error {
	_, err := q.Exec(`INSERT OR REPLACE INTO ships (account, ship_id, command_power, hit_points, attack_base,
	                  attack_variable, defence, speed, fire_range) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(account), id, s.CommandPower, s.HitPoints, s.AttackBase, s.AttackVariable, s.Defence, s.Speed, s.Range)
	return err
}

func loadShip(q querier, account types.AccountID, id types.ShipID) (types.Ship, error) {
	var s types.Ship
	err := q.QueryRow(`SELECT command_power, hit_points, attack_base, attack_variable, defence, speed, fire_range
	                   FROM ships WHERE account=? AND ship_id=?`, string(account), id).
		Scan(&s.CommandPower, &s.HitPoints, &s.AttackBase, &s.AttackVariable, &s.Defence, &s.Speed, &s.Range)
	if errors.Is(err, sql.ErrNoRows) {
		return s, game.ErrShipNotFound
	}
	return s, err
}

func loadShips(q querier, account types.AccountID) (map[types.ShipID]types.Ship, error) {
	rows, err := q.Query(`SELECT ship_id, command_power, hit_points, attack_base, attack_variable, defence, speed, fire_range
	                      FROM ships WHERE account=? ORDER BY ship_id`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ships := make(map[types.ShipID]types.Ship)
	for rows.Next() {
		var id types.ShipID
		var s types.Ship
		if err := rows.Scan(&id, &s.CommandPower, &s.HitPoints, &s.AttackBase, &s.AttackVariable, &s.Defence, &s.Speed, &s.Range); err != nil {
			return nil, err
		}
		ships[id] = s
	}
	return ships, rows.Err()
}

// sqlHangar serves ship lookups to the simulator from the registry.
type sqlHangar struct {
	q querier
}

func (h sqlHangar) Ship(account types.AccountID, id types.ShipID) (types.Ship, bool) {
	s, err := loadShip(h.q, account, id)
	if err != nil {
		if !errors.Is(err, game.ErrShipNotFound) {
			ErrorLog.Printf("Hangar lookup %s/%d: %v", account, id, err)
		}
		return types.Ship{}, false
	}
	return s, true
}

// --- Commanders ---

func loadCommanders(q querier, account types.AccountID) (map[types.CommanderID]types.CommanderData, error) {
	rows, err := q.Query("SELECT commander_id, exp FROM commanders WHERE account=? ORDER BY commander_id", string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.CommanderID]types.CommanderData)
	for rows.Next() {
		var id types.CommanderID
		var c types.CommanderData
		if err := rows.Scan(&id, &c.Exp); err != nil {
			return nil, err
		}
		out[id] = c
	}
	return out, rows.Err()
}

func hasCommander(q querier, account types.AccountID, id types.CommanderID) (bool, error) {
	var n int
	err := q.QueryRow("SELECT count(*) FROM commanders WHERE account=? AND commander_id=?", string(account), id).Scan(&n)
	return n > 0, err
}

// addCommanderExp grants exp to an existing commander and returns the new total.
func addCommanderExp(q querier, account types.AccountID, id types.CommanderID, exp uint32) (uint32, error) {
	var current uint32
	err := q.QueryRow("SELECT exp FROM commanders WHERE account=? AND commander_id=?", string(account), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errCommanderNotFound
	}
	if err != nil {
		return 0, err
	}
	current = types.SaturatingAdd32(current, exp)
	_, err = q.Exec("UPDATE commanders SET exp=? WHERE account=? AND commander_id=?", current, string(account), id)
	return current, err
}

// grantCommander adds a new commander with starting exp, or tops up an
// existing one. added reports which case happened.
func grantCommander(q querier, account types.AccountID, id types.CommanderID) (exp uint32, added bool, err error) {
	owned, err := hasCommander(q, account, id)
	if err != nil {
		return 0, false, err
	}
	if owned {
		exp, err = addCommanderExp(q, account, id, types.XPPerLootCrate)
		return exp, false, err
	}
	_, err = q.Exec("INSERT INTO commanders (account, commander_id, exp) VALUES (?, ?, ?)", string(account), id, types.XPPerLootCrate)
	return types.XPPerLootCrate, true, err
}

// --- Fleets ---

func storeFleet(q querier, account types.AccountID, role string, f types.Fleet) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = q.Exec("INSERT OR REPLACE INTO fleets (account, role, composition_json) VALUES (?, ?, ?)", string(account), role, string(raw))
	return err
}

// loadFleet returns sql.ErrNoRows when the account has no fleet in that role.
func loadFleet(q querier, account types.AccountID, role string) (types.Fleet, error) {
	var raw string
	var f types.Fleet
	if err := q.QueryRow("SELECT composition_json FROM fleets WHERE account=? AND role=?", string(account), role).Scan(&raw); err != nil {
		return f, err
	}
	err := json.Unmarshal([]byte(raw), &f)
	return f, err
}

// validateFleet checks the fleet only references the account's own
// commander and ships.
func validateFleet(q querier, account types.AccountID, f types.Fleet) error {
	for i, w := range f.Composition {
		if !w.Formation.Valid() {
			return fmt.Errorf("%w: wing %d has formation %d", errInvalidFleet, i, w.Formation)
		}
	}
	owned, err := hasCommander(q, account, f.Commander)
	if err != nil {
		return err
	}
	if !owned {
		return fmt.Errorf("%w: %d", errCommanderNotFound, f.Commander)
	}
	for _, w := range f.Composition {
		if _, err := loadShip(q, account, w.ShipID); err != nil {
			if errors.Is(err, game.ErrShipNotFound) {
				return fmt.Errorf("%w: %d", err, w.ShipID)
			}
			return err
		}
	}
	return nil
}

// --- Engagements ---

func insertEngagement(q querier, account, target types.AccountID, result types.EngagementResult) (types.EngagementID, string, error) {
	id, err := nextCounter(q, account, "next_engagement_id", int64(^types.EngagementID(0)))
	if err != nil {
		return 0, "", err
	}
	blob := types.EncodeResult(result)
	hash := core.Hash(blob)
	_, err = q.Exec(`INSERT OR REPLACE INTO engagements (account, engagement_id, target, result_blob, result_hash, created_at)
	                 VALUES (?, ?, ?, ?, ?, ?)`, string(account), id, string(target), blob, hash, time.Now().Unix())
	return types.EngagementID(id), hash, err
}

func loadHistory(q querier, account types.AccountID) ([]HistoryEntry, error) {
	rows, err := q.Query(`SELECT engagement_id, target, result_blob, result_hash FROM engagements
	                      WHERE account=? ORDER BY engagement_id`, string(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		var target string
		var blob []byte
		if err := rows.Scan(&h.EngagementID, &target, &blob, &h.ResultHash); err != nil {
			return nil, err
		}
		if h.Result, err = types.DecodeResult(blob); err != nil {
			return nil, fmt.Errorf("engagement %d: %w", h.EngagementID, err)
		}
		h.Target = types.AccountID(target)
		history = append(history, h)
	}
	return history, rows.Err()
}

// insertLog stores a move log lz4 compressed under the next log id.
func insertLog(q querier, account types.AccountID, log types.EngagementLog) (types.LogID, error) {
	packed, err := core.Compress(types.EncodeLog(log))
	if err != nil {
		return 0, err
	}
	id, err := nextCounter(q, account, "next_log_id", int64(^types.LogID(0)))
	if err != nil {
		return 0, err
	}
	_, err = q.Exec("INSERT OR REPLACE INTO engagement_logs (account, log_id, moves, log_blob) VALUES (?, ?, ?, ?)",
		string(account), id, len(log), packed)
	return types.LogID(id), err
}

func loadLog(q querier, account types.AccountID, id types.LogID) (types.EngagementLog, error) {
	var packed []byte
	err := q.QueryRow("SELECT log_blob FROM engagement_logs WHERE account=? AND log_id=?", string(account), id).Scan(&packed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errLogNotFound
	}
	if err != nil {
		return nil, err
	}
	raw, err := core.Decompress(packed)
	if err != nil {
		return nil, err
	}
	return types.DecodeLog(raw)
}
