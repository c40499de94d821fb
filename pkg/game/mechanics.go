package game

import (
	"newomega/pkg/core"
	"newomega/pkg/types"
)

// --- Wing State ---

// IsDead reports whether every wing HP pool is exhausted.
func IsDead(hps []int32) bool {
	for _, hp := range hps {
		if hp > 0 {
			return false
		}
	}
	return true
}

// shipsFromHP returns how many ships a wing pool represents, rounding up so a
// damaged ship still counts.
func shipsFromHP(wingHP uint32, shipHP uint16) uint32 {
	if shipHP == 0 {
		return 0
	}
	n := wingHP / uint32(shipHP)
	if wingHP%uint32(shipHP) != 0 {
		n++
	}
	return n
}

func shipsLost(w types.FleetWing, ship types.Ship, hp int32) uint8 {
	if ship.HitPoints == 0 {
		return w.WingSize
	}
	full := uint32(w.WingSize) * uint32(ship.HitPoints)
	left := uint32(0)
	if hp > 0 {
		left = uint32(hp)
	}
	if left > full {
		left = full
	}
	return uint8((full - left) / uint32(ship.HitPoints))
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// --- Loot Crates ---

// RollCommander draws one value from a modulus-101 roller and maps it onto the
// commander tiers. The first tier takes rolls below 75 and every later window
// closes half of the remaining gap to 100. Rolls past the last window fall back
// to commander 0.
func RollCommander(roller *core.DiceRoller) types.CommanderID {
	roll := roller.Next()
	prob := uint8(75)

	for i := types.CommanderID(0); i < types.MaxCommanders; i++ {
		if roll < prob {
			return i
		}
		prob += (100 - prob) / 2
	}
	return 0
}
