package types

import "fmt"

// --- Identifiers ---

type AccountID string
type CommanderID = uint8
type ShipID = uint8
type BoardPosition = int16
type EngagementID = uint32
type LogID = uint32

// --- Game Constants ---

const (
	MaxCommanders  CommanderID = 4
	XPPerLootCrate uint32      = 10
	XPPerRankedWin uint32      = 25

	MaxFleetWings        = 4
	MaxRounds            = 50
	FitToStat     uint16 = 20
	MaxLogEntries        = MaxRounds * MaxFleetWings
)

// --- Ships ---

// Ship describes a single registered ship type. Values are copied into the
// simulator and never mutated.
type Ship struct {
	CommandPower   uint16 `json:"command_power" yaml:"command_power"`
	HitPoints      uint16 `json:"hit_points" yaml:"hit_points"`
	AttackBase     uint16 `json:"attack_base" yaml:"attack_base"`
	AttackVariable uint16 `json:"attack_variable" yaml:"attack_variable"` // Subject to the seed
	Defence        uint16 `json:"defence" yaml:"defence"`
	Speed          uint8  `json:"speed" yaml:"speed"` // Fields per round
	Range          uint8  `json:"range" yaml:"range"` // Fields in front it can shoot at
}

// EffectiveDefence applies the formation bonus, saturating at the uint16 bounds.
func (s Ship) EffectiveDefence(f WingFormation) uint16 {
	switch f {
	case Defensive:
		return SaturatingAdd16(s.Defence, FitToStat)
	case Offensive:
		return SaturatingSub16(s.Defence, FitToStat)
	default:
		return s.Defence
	}
}

func (s Ship) EffectiveAttack(f WingFormation) uint16 {
	switch f {
	case Defensive:
		return SaturatingSub16(s.AttackBase, FitToStat)
	case Offensive:
		return SaturatingAdd16(s.AttackBase, FitToStat)
	default:
		return s.AttackBase
	}
}

// --- Fleets ---

type WingFormation uint8

const (
	Neutral WingFormation = iota
	Defensive
	Offensive
)

func (f WingFormation) String() string {
	switch f {
	case Neutral:
		return "neutral"
	case Defensive:
		return "defensive"
	case Offensive:
		return "offensive"
	}
	return "unknown"
}

// ParseFormation accepts the names String returns.
func ParseFormation(name string) (WingFormation, error) {
	for f := Neutral; f <= Offensive; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return Neutral, fmt.Errorf("unknown formation %q", name)
}

// Valid reports whether f is one of the known formations.
func (f WingFormation) Valid() bool { return f <= Offensive }

type FleetWing struct {
	ShipID    ShipID        `json:"ship_id" yaml:"ship_id"`
	Formation WingFormation `json:"formation" yaml:"formation"`
	WingSize  uint8         `json:"wing_size" yaml:"wing_size"` // Ships sharing the wing HP pool
}

func NewFleetWing(shipID ShipID, formation WingFormation, wingSize uint8) FleetWing {
	return FleetWing{ShipID: shipID, Formation: formation, WingSize: wingSize}
}

type Fleet struct {
	Composition [MaxFleetWings]FleetWing `json:"composition" yaml:"composition"`
	Commander   CommanderID              `json:"commander" yaml:"commander"`
}

// TotalShips sums the wing sizes.
func (f Fleet) TotalShips() uint16 {
	var total uint16
	for _, w := range f.Composition {
		total += uint16(w.WingSize)
	}
	return total
}

type ShipLoss struct {
	ShipID ShipID `json:"ship_id"`
	Lost   uint8  `json:"lost"`
}

type FleetDamageReport [MaxFleetWings]ShipLoss

// --- Engagements ---

type EngagementResult struct {
	AttackerFleet        Fleet             `json:"attacker_fleet"`
	DefenderFleet        Fleet             `json:"defender_fleet"`
	AttackerDefeated     bool              `json:"attacker_defeated"`
	DefenderDefeated     bool              `json:"defender_defeated"`
	Rounds               uint8             `json:"rounds"`
	Seed                 uint64            `json:"seed"`
	AttackerDamageReport FleetDamageReport `json:"attacker_damage_report"`
	DefenderDamageReport FleetDamageReport `json:"defender_damage_report"`
}

type MoveKind uint8

const (
	MoveShoot MoveKind = iota
	MoveReposition
)

func (k MoveKind) String() string {
	if k == MoveShoot {
		return "shoot"
	}
	return "reposition"
}

// Move is one logged action of a wing. To and Damage are only meaningful for
// MoveShoot. TargetPosition is where the acting wing ends the round.
type Move struct {
	Kind           MoveKind      `json:"kind"`
	Round          uint8         `json:"round"`
	From           ShipID        `json:"from"`
	To             ShipID        `json:"to,omitempty"`
	Damage         uint32        `json:"damage,omitempty"`
	TargetPosition BoardPosition `json:"target_position"`
}

func Shoot(round uint8, from, to ShipID, damage uint32, pos BoardPosition) Move {
	return Move{Kind: MoveShoot, Round: round, From: from, To: to, Damage: damage, TargetPosition: pos}
}

func Reposition(round uint8, from ShipID, pos BoardPosition) Move {
	return Move{Kind: MoveReposition, Round: round, From: from, TargetPosition: pos}
}

// EngagementLog is an ordered, append-only list of moves for one side.
type EngagementLog []Move

// Append adds m unless the log already holds MaxLogEntries moves.
func (l *EngagementLog) Append(m Move) bool {
	if len(*l) >= MaxLogEntries {
		return false
	}
	*l = append(*l, m)
	return true
}

// --- Players ---

type CommanderData struct {
	Exp uint32 `json:"exp"`
}

type PlayerData struct {
	RankedWins   uint32 `json:"ranked_wins"`
	RankedLosses uint32 `json:"ranked_losses"`
}
