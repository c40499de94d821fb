package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"newomega/pkg/types"
)

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// --- Organizer ---

func handleSetOrganizer(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Admin-Token")
	if Config.AdminToken == "" || token != Config.AdminToken {
		writeError(w, errUnauthorized)
		return
	}
	var req struct {
		Organizer types.AccountID `json:"organizer"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Organizer == "" {
		writeError(w, fmt.Errorf("%w: organizer is empty", errBadRequest))
		return
	}
	if err := setOrganizer(req.Organizer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organizer": req.Organizer})
}

func handleGetOrganizer(w http.ResponseWriter, r *http.Request) {
	organizer, err := currentOrganizer(db)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"organizer": organizer})
}

// --- Player Actions ---

func handleLootCrate(w http.ResponseWriter, r *http.Request) {
	account, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rolled, err := buyLootCrate(account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rolled)
}

func handleAddShip(w http.ResponseWriter, r *http.Request) {
	account, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var ship types.Ship
	if err := decodeBody(r, &ship); err != nil {
		writeError(w, err)
		return
	}
	id, err := registerShip(account, ship)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ship_id": id, "ship": ship})
}

func fleetHandler(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := accountFrom(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var fleet types.Fleet
		if err := decodeBody(r, &fleet); err != nil {
			writeError(w, err)
			return
		}
		if err := registerFleet(account, role, fleet); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"role": role, "fleet": fleet})
	}
}

var (
	handleRegisterDefense = fleetHandler(roleDefense)
	handleRegisterOffense = fleetHandler(roleOffense)
)

func handleEngage(w http.ResponseWriter, r *http.Request) {
	attacker, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req EngageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Target == "" {
		writeError(w, fmt.Errorf("%w: target is empty", errBadRequest))
		return
	}
	outcome, err := engagePlayer(attacker, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// --- Queries ---

func handleHistory(w http.ResponseWriter, r *http.Request) {
	account, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := loadHistory(db, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func handleLog(w http.ResponseWriter, r *http.Request) {
	account, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, fmt.Errorf("%w: log id %q", errBadRequest, r.PathValue("id")))
		return
	}
	moves, err := loadLog(db, account, types.LogID(id))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

func handlePlayer(w http.ResponseWriter, r *http.Request) {
	account, err := accountFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := playerView(db, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := leaderboard(db, leaderboardSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func handleLedgerAudit(w http.ResponseWriter, r *http.Request) {
	n, err := auditLedger(db)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"verified": n, "ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"verified": n, "ok": true})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	seq, head, err := ledgerHead(db)
	if err != nil {
		writeError(w, err)
		return
	}
	status := StatusResponse{UUID: ServerUUID, LedgerSeq: seq, Head: head}
	if organizer, err := currentOrganizer(db); err == nil {
		status.Organizer = string(organizer)
	}
	if hub != nil {
		status.Clients = hub.Count()
	}
	writeJSON(w, http.StatusOK, status)
}
