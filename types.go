package main

import (
	"newomega/pkg/types"
)

// --- Events ---

type Event struct {
	Type    string          `json:"type"`
	Account types.AccountID `json:"account,omitempty"`
	Data    interface{}     `json:"data,omitempty"`
	Time    int64           `json:"time"`
}

const (
	EventOrganizerSet           = "OrganizerSet"
	EventCommanderRolled        = "CommanderRolled"
	EventCommanderReceivedExp   = "CommanderReceivedExp"
	EventShipRegistered         = "ShipRegistered"
	EventDefenseFleetRegistered = "DefenseFleetRegistered"
	EventOffenseFleetRegistered = "OffenseFleetRegistered"
	EventEngagementFinished     = "EngagementFinished"
)

type CommanderExp struct {
	Commander  types.CommanderID `json:"commander"`
	CurrentExp uint32            `json:"current_exp"`
}

// --- Ledger ---

type LedgerEntry struct {
	Seq         int64  `json:"seq"`
	Timestamp   int64  `json:"timestamp"`
	ActionType  string `json:"action_type"`
	PayloadHash string `json:"payload_hash"`
	PrevHash    string `json:"prev_hash"`
	FinalHash   string `json:"final_hash"`
	Signature   []byte `json:"signature"`
}

// --- API Models ---

type EngageRequest struct {
	Target types.AccountID `json:"target"`
}

type EngagementOutcome struct {
	EngagementID  types.EngagementID     `json:"engagement_id"`
	Attacker      types.AccountID        `json:"attacker"`
	Target        types.AccountID        `json:"target"`
	Result        types.EngagementResult `json:"result"`
	AttackerLogID *types.LogID           `json:"attacker_log_id,omitempty"`
	DefenderLogID *types.LogID           `json:"defender_log_id,omitempty"`
	LedgerHash    string                 `json:"ledger_hash"`
}

type HistoryEntry struct {
	EngagementID types.EngagementID     `json:"engagement_id"`
	Target       types.AccountID        `json:"target"`
	Result       types.EngagementResult `json:"result"`
	ResultHash   string                 `json:"result_hash"`
}

type PlayerView struct {
	Account    types.AccountID                           `json:"account"`
	Credits    int64                                     `json:"credits"`
	Player     types.PlayerData                          `json:"player"`
	Ships      map[types.ShipID]types.Ship               `json:"ships"`
	Commanders map[types.CommanderID]types.CommanderData `json:"commanders"`
	Defense    *types.Fleet                              `json:"defense,omitempty"`
	Offense    *types.Fleet                              `json:"offense,omitempty"`
}

type LeaderboardRow struct {
	Account types.AccountID `json:"account"`
	types.PlayerData
}

type StatusResponse struct {
	UUID      string `json:"uuid"`
	Organizer string `json:"organizer,omitempty"`
	LedgerSeq int64  `json:"ledger_seq"`
	Head      string `json:"head"`
	Clients   int    `json:"clients"`
}
