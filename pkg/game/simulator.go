package game

import (
	"errors"
	"fmt"

	"newomega/pkg/types"
)

var ErrShipNotFound = errors.New("ship not found")

// Hangar resolves the ships registered to an account.
type Hangar interface {
	Ship(account types.AccountID, id types.ShipID) (types.Ship, bool)
}

// HangarFunc adapts a plain lookup function to Hangar.
type HangarFunc func(account types.AccountID, id types.ShipID) (types.Ship, bool)

func (f HangarFunc) Ship(account types.AccountID, id types.ShipID) (types.Ship, bool) {
	return f(account, id)
}

// BattleSimulator resolves engagements. It holds no state between calls and
// never mutates the fleets or ships it is given.
type BattleSimulator struct {
	hangar Hangar
}

func NewBattleSimulator(hangar Hangar) *BattleSimulator {
	return &BattleSimulator{hangar: hangar}
}

var (
	attackerStart = [types.MaxFleetWings]types.BoardPosition{10, 11, 12, 13}
	defenderStart = [types.MaxFleetWings]types.BoardPosition{-10, -11, -12, -13}
)

// side is the working state of one fleet during an engagement.
type side struct {
	fleet    types.Fleet
	hangar   [types.MaxFleetWings]types.Ship
	variable [types.MaxFleetWings]uint16
	hp       [types.MaxFleetWings]int32
	pos      [types.MaxFleetWings]types.BoardPosition
	heading  int32 // -1 advances toward negative positions
	log      *types.EngagementLog
}

// action is what one wing decided to do in a round.
type action struct {
	acted  bool
	shoots bool
	target int
	damage uint32
	move   int32
}

func (s *BattleSimulator) resolveHangar(account types.AccountID, fleet types.Fleet) ([types.MaxFleetWings]types.Ship, error) {
	var ships [types.MaxFleetWings]types.Ship
	for i, w := range fleet.Composition {
		ship, ok := s.hangar.Ship(account, w.ShipID)
		if !ok {
			return ships, fmt.Errorf("%w: account %s ship %d", ErrShipNotFound, account, w.ShipID)
		}
		ships[i] = ship
	}
	return ships, nil
}

// target scans the enemy wings from the back line forward and keeps the
// lowest-indexed live wing within range+speed. move is how far the wing has to
// advance to bring it into pure range.
func target(ship types.Ship, pos types.BoardPosition, enemyPos [types.MaxFleetWings]types.BoardPosition, enemyHP [types.MaxFleetWings]int32) (idx int, move int32, ok bool) {
	reach := int32(ship.Range) + int32(ship.Speed)
	for e := types.MaxFleetWings - 1; e >= 0; e-- {
		if enemyHP[e] <= 0 {
			continue
		}
		dist := abs32(int32(pos) - int32(enemyPos[e]))
		if dist > reach {
			continue
		}
		idx, ok = e, true
		move = 0
		if dist > int32(ship.Range) {
			move = dist - int32(ship.Range)
		}
	}
	return idx, move, ok
}

// calculateDamage returns the damage wing atkIdx deals to wing defIdx given
// the attacker's current pool. It never exceeds what would wipe out as many
// target ships as the attacker fields.
func calculateDamage(atk, def *side, atkIdx, defIdx int, atkWingHP uint32) uint32 {
	atkShip := atk.hangar[atkIdx]
	defShip := def.hangar[defIdx]

	attack := types.SaturatingAdd16(atkShip.EffectiveAttack(atk.fleet.Composition[atkIdx].Formation), atk.variable[atkIdx])
	defence := defShip.EffectiveDefence(def.fleet.Composition[defIdx].Formation)

	ships := shipsFromHP(atkWingHP, atkShip.HitPoints)
	capDamage := types.SaturatingMul32(ships, uint32(defShip.HitPoints))
	damage := types.SaturatingMul32(uint32(types.SaturatingSub16(attack, defence)), ships)

	if damage > capDamage {
		return capDamage
	}
	return damage
}

// decide computes the action of wing i against the round snapshot.
func decide(own, enemy *side, i int, pos, enemyPos [types.MaxFleetWings]types.BoardPosition, hp, enemyHP [types.MaxFleetWings]int32) action {
	if hp[i] <= 0 {
		return action{}
	}
	idx, move, ok := target(own.hangar[i], pos[i], enemyPos, enemyHP)
	if !ok {
		return action{acted: true, move: int32(own.hangar[i].Speed)}
	}
	return action{
		acted:  true,
		shoots: true,
		target: idx,
		damage: calculateDamage(own, enemy, i, idx, uint32(hp[i])),
		move:   move,
	}
}

func (sd *side) apply(round uint8, i int, a action, enemy *side) {
	if !a.acted {
		return
	}
	sd.pos[i] = types.ClampPosition(int32(sd.pos[i]) + sd.heading*a.move)

	if a.shoots {
		enemy.hp[a.target] = types.ClampI32(int64(enemy.hp[a.target]) - int64(a.damage))
		if sd.log != nil {
			sd.log.Append(types.Shoot(round, types.ShipID(i), types.ShipID(a.target), a.damage, sd.pos[i]))
		}
		return
	}
	if sd.log != nil {
		sd.log.Append(types.Reposition(round, types.ShipID(i), sd.pos[i]))
	}
}

func (sd *side) report() types.FleetDamageReport {
	var r types.FleetDamageReport
	for i, w := range sd.fleet.Composition {
		r[i] = types.ShipLoss{ShipID: w.ShipID, Lost: shipsLost(w, sd.hangar[i], sd.hp[i])}
	}
	return r
}

// SimulateEngagement resolves a full engagement from the seed. Move logs are
// only returned when logMoves is set. A wing referencing an unknown ship
// aborts with ErrShipNotFound before anything is simulated.
func (s *BattleSimulator) SimulateEngagement(
	attacker types.AccountID,
	attackerFleet types.Fleet,
	defender types.AccountID,
	defenderFleet types.Fleet,
	seed uint64,
	logMoves bool,
) (types.EngagementResult, types.EngagementLog, types.EngagementLog, error) {
	atkHangar, err := s.resolveHangar(attacker, attackerFleet)
	if err != nil {
		return types.EngagementResult{}, nil, nil, err
	}
	defHangar, err := s.resolveHangar(defender, defenderFleet)
	if err != nil {
		return types.EngagementResult{}, nil, nil, err
	}

	atk := &side{fleet: attackerFleet, hangar: atkHangar, pos: attackerStart, heading: -1}
	def := &side{fleet: defenderFleet, hangar: defHangar, pos: defenderStart, heading: 1}

	var atkLog, defLog types.EngagementLog
	if logMoves {
		atkLog = make(types.EngagementLog, 0, types.MaxLogEntries)
		defLog = make(types.EngagementLog, 0, types.MaxLogEntries)
		atk.log, def.log = &atkLog, &defLog
	}

	// Variable damage is fixed for the whole engagement and keyed on the
	// defender's hangar for both sides.
	for i := 0; i < types.MaxFleetWings; i++ {
		atk.hp[i] = types.ClampI32(int64(atkHangar[i].HitPoints) * int64(attackerFleet.Composition[i].WingSize))
		def.hp[i] = types.ClampI32(int64(defHangar[i].HitPoints) * int64(defenderFleet.Composition[i].WingSize))

		if v := uint64(defHangar[i].AttackVariable); v > 0 {
			atk.variable[i] = uint16(seed % v)
			def.variable[i] = uint16((seed / 2) % v)
		}
	}

	var rounds uint8
	for round := 0; round < types.MaxRounds; round++ {
		if IsDead(atk.hp[:]) || IsDead(def.hp[:]) {
			break
		}
		rounds++

		// Every wing acts on the state as it was when the round began.
		atkHP, defHP := atk.hp, def.hp
		atkPos, defPos := atk.pos, def.pos

		var atkActs, defActs [types.MaxFleetWings]action
		for i := 0; i < types.MaxFleetWings; i++ {
			atkActs[i] = decide(atk, def, i, atkPos, defPos, atkHP, defHP)
			defActs[i] = decide(def, atk, i, defPos, atkPos, defHP, atkHP)
		}
		for i := 0; i < types.MaxFleetWings; i++ {
			atk.apply(uint8(round), i, atkActs[i], def)
			def.apply(uint8(round), i, defActs[i], atk)
		}
	}

	result := types.EngagementResult{
		AttackerFleet:        attackerFleet,
		DefenderFleet:        defenderFleet,
		AttackerDefeated:     defenderFleet.TotalShips() > 0 && IsDead(atk.hp[:]),
		DefenderDefeated:     IsDead(def.hp[:]),
		Rounds:               rounds,
		Seed:                 seed,
		AttackerDamageReport: atk.report(),
		DefenderDamageReport: def.report(),
	}

	return result, atkLog, defLog, nil
}
