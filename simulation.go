package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"newomega/pkg/core"
	"newomega/pkg/game"
	"newomega/pkg/types"
)

// withTx runs fn as one state transition: under stateLock, inside a single
// transaction. Events fn returns are only published once the commit lands.
func withTx(fn func(tx *sql.Tx) ([]Event, error)) error {
	stateLock.Lock()
	defer stateLock.Unlock()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	events, err := fn(tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, ev := range events {
		deposit(ev)
	}
	return nil
}

func newEvent(kind string, account types.AccountID, data interface{}) Event {
	return Event{Type: kind, Account: account, Data: data, Time: time.Now().Unix()}
}

// --- Organizer ---

func setOrganizer(organizer types.AccountID) error {
	return withTx(func(tx *sql.Tx) ([]Event, error) {
		if err := setMeta(tx, "organizer", string(organizer)); err != nil {
			return nil, err
		}
		if _, err := appendLedger(tx, ActionOrganizerSet, []byte(organizer)); err != nil {
			return nil, err
		}
		InfoLog.Printf("ORGANIZER: %s", organizer)
		return []Event{newEvent(EventOrganizerSet, organizer, nil)}, nil
	})
}

func currentOrganizer(q querier) (types.AccountID, error) {
	v, err := getMeta(q, "organizer")
	if errors.Is(err, sql.ErrNoRows) {
		return "", errOrganizerNotSet
	}
	return types.AccountID(v), err
}

// --- Loot Crates ---

// buyLootCrate rolls a commander for the account. A commander already owned
// gets the crate's exp instead.
func buyLootCrate(account types.AccountID) (CommanderExp, error) {
	var out CommanderExp
	err := withTx(func(tx *sql.Tx) ([]Event, error) {
		hash, err := randomHash(tx, phraseCommander, string(account))
		if err != nil {
			return nil, err
		}
		id := game.RollCommander(core.NewDiceRoller(hash, core.HashSize, 101))

		exp, added, err := grantCommander(tx, account, id)
		if err != nil {
			return nil, err
		}
		out = CommanderExp{Commander: id, CurrentExp: exp}

		payload, _ := json.Marshal(struct {
			Account   types.AccountID   `json:"account"`
			Commander types.CommanderID `json:"commander"`
		}{account, id})
		if _, err := appendLedger(tx, ActionLootCrate, payload); err != nil {
			return nil, err
		}

		var events []Event
		if !added {
			events = append(events, newEvent(EventCommanderReceivedExp, account, out))
		}
		events = append(events, newEvent(EventCommanderRolled, account, out))
		return events, nil
	})
	return out, err
}

// --- Hangar ---

// registerShip stores the ship under the account's next ship id and charges
// the ship cost, taking whatever is left when the balance falls short.
func registerShip(account types.AccountID, ship types.Ship) (types.ShipID, error) {
	var id types.ShipID
	err := withTx(func(tx *sql.Tx) ([]Event, error) {
		next, err := nextCounter(tx, account, "next_ship_id", int64(^types.ShipID(0)))
		if err != nil {
			return nil, err
		}
		id = types.ShipID(next)
		if err := slashCredits(tx, account, Config.ShipCost); err != nil {
			return nil, err
		}
		if err := insertShip(tx, account, id, ship); err != nil {
			return nil, err
		}

		payload, _ := json.Marshal(struct {
			Account types.AccountID `json:"account"`
			ShipID  types.ShipID    `json:"ship_id"`
			Ship    types.Ship      `json:"ship"`
		}{account, id, ship})
		if _, err := appendLedger(tx, ActionShipRegistered, payload); err != nil {
			return nil, err
		}
		return []Event{newEvent(EventShipRegistered, account, map[string]interface{}{"ship_id": id, "ship": ship})}, nil
	})
	return id, err
}

// registerFleet validates and stores a fleet for the given role.
func registerFleet(account types.AccountID, role string, fleet types.Fleet) error {
	action, kind := ActionFleetDefense, EventDefenseFleetRegistered
	if role == roleOffense {
		action, kind = ActionFleetOffense, EventOffenseFleetRegistered
	}
	return withTx(func(tx *sql.Tx) ([]Event, error) {
		if err := validateFleet(tx, account, fleet); err != nil {
			return nil, err
		}
		if err := storeFleet(tx, account, role, fleet); err != nil {
			return nil, err
		}
		payload, _ := json.Marshal(struct {
			Account types.AccountID `json:"account"`
			Fleet   types.Fleet     `json:"fleet"`
		}{account, fleet})
		if _, err := appendLedger(tx, action, payload); err != nil {
			return nil, err
		}
		return []Event{newEvent(kind, account, nil)}, nil
	})
}

// --- Engagements ---

// engagePlayer fights the attacker's offense fleet against the target's
// defense fleet and settles rankings, exp, history and logs in one commit.
func engagePlayer(attacker, target types.AccountID) (EngagementOutcome, error) {
	var out EngagementOutcome
	err := withTx(func(tx *sql.Tx) ([]Event, error) {
		offense, err := loadFleet(tx, attacker, roleOffense)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errOffensiveFleetNotRegistered
		}
		if err != nil {
			return nil, err
		}
		defense, err := loadFleet(tx, target, roleDefense)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errDefensiveFleetNotRegistered
		}
		if err != nil {
			return nil, err
		}

		seed, err := engagementSeed(tx, string(attacker))
		if err != nil {
			return nil, err
		}

		sim := game.NewBattleSimulator(sqlHangar{q: tx})
		result, atkLog, defLog, err := sim.SimulateEngagement(attacker, offense, target, defense, seed, Config.LogMoves)
		if err != nil {
			return nil, err
		}

		var events []Event
		reward := func(winner, loser types.AccountID, commander types.CommanderID) error {
			if err := markRankedWin(tx, winner); err != nil {
				return err
			}
			if err := markRankedLoss(tx, loser); err != nil {
				return err
			}
			exp, err := addCommanderExp(tx, winner, commander, types.XPPerRankedWin)
			if err != nil {
				return fmt.Errorf("reward %s: %w", winner, err)
			}
			events = append(events, newEvent(EventCommanderReceivedExp, winner, CommanderExp{Commander: commander, CurrentExp: exp}))
			return nil
		}
		switch {
		case result.AttackerDefeated:
			err = reward(target, attacker, defense.Commander)
		case result.DefenderDefeated:
			err = reward(attacker, target, offense.Commander)
		}
		if err != nil {
			return nil, err
		}

		engagementID, _, err := insertEngagement(tx, attacker, target, result)
		if err != nil {
			return nil, err
		}
		out = EngagementOutcome{EngagementID: engagementID, Attacker: attacker, Target: target, Result: result}

		if atkLog != nil {
			id, err := insertLog(tx, attacker, atkLog)
			if err != nil {
				return nil, err
			}
			out.AttackerLogID = &id
		}
		if defLog != nil {
			id, err := insertLog(tx, target, defLog)
			if err != nil {
				return nil, err
			}
			out.DefenderLogID = &id
		}

		entry, err := appendLedger(tx, ActionEngagement, types.EncodeResult(result))
		if err != nil {
			return nil, err
		}
		out.LedgerHash = entry.FinalHash

		InfoLog.Printf("ENGAGEMENT: %s vs %s seed=%d rounds=%d atk_defeated=%t def_defeated=%t",
			attacker, target, seed, result.Rounds, result.AttackerDefeated, result.DefenderDefeated)
		return append(events, newEvent(EventEngagementFinished, attacker, out)), nil
	})
	return out, err
}

// --- Player View ---

func playerView(q querier, account types.AccountID) (PlayerView, error) {
	player, credits, err := loadPlayer(q, account)
	if err != nil {
		return PlayerView{}, err
	}
	view := PlayerView{Account: account, Credits: credits, Player: player}
	if view.Ships, err = loadShips(q, account); err != nil {
		return view, err
	}
	if view.Commanders, err = loadCommanders(q, account); err != nil {
		return view, err
	}
	for role, dst := range map[string]**types.Fleet{roleDefense: &view.Defense, roleOffense: &view.Offense} {
		f, err := loadFleet(q, account, role)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return view, err
		}
		*dst = &f
	}
	return view, nil
}

// --- Snapshots ---

// snapshotLeaderboard stores the current leaderboard lz4 compressed and
// chained to the previous snapshot.
func snapshotLeaderboard() (string, error) {
	stateLock.Lock()
	defer stateLock.Unlock()

	board, err := leaderboard(db, leaderboardSize)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(board)
	if err != nil {
		return "", err
	}
	blob, err := core.Compress(raw)
	if err != nil {
		return "", err
	}

	prev := GenesisHash
	err = db.QueryRow("SELECT final_hash FROM leaderboard_snapshots ORDER BY id DESC LIMIT 1").Scan(&prev)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	final := core.ChainHash(prev, "LEADERBOARD", core.Hash(raw))

	_, err = db.Exec("INSERT INTO leaderboard_snapshots (taken_at, state_blob, final_hash) VALUES (?, ?, ?)",
		time.Now().Unix(), blob, final)
	return final, err
}

func runSnapshotLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(Config.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hash, err := snapshotLeaderboard()
			if err != nil {
				ErrorLog.Printf("Snapshot failed: %v", err)
				continue
			}
			InfoLog.Printf("SNAPSHOT: leaderboard %s", hash)
		case <-stop:
			return
		}
	}
}
