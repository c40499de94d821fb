package game

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"newomega/pkg/types"
)

const (
	alice types.AccountID = "alice"
	bob   types.AccountID = "bob"
)

// defaultShips mirrors the starter hangar every test account receives.
var defaultShips = []types.Ship{
	{CommandPower: 1, HitPoints: 120, AttackBase: 80, AttackVariable: 20, Defence: 20, Speed: 4, Range: 4},
	{CommandPower: 3, HitPoints: 150, AttackBase: 65, AttackVariable: 20, Defence: 30, Speed: 3, Range: 8},
	{CommandPower: 4, HitPoints: 220, AttackBase: 65, AttackVariable: 20, Defence: 35, Speed: 2, Range: 15},
	{CommandPower: 10, HitPoints: 450, AttackBase: 80, AttackVariable: 20, Defence: 40, Speed: 1, Range: 30},
}

type mapHangar map[types.AccountID][]types.Ship

func (h mapHangar) Ship(account types.AccountID, id types.ShipID) (types.Ship, bool) {
	ships := h[account]
	if int(id) >= len(ships) {
		return types.Ship{}, false
	}
	return ships[id], true
}

func prepareHangar() mapHangar {
	return mapHangar{alice: defaultShips, bob: defaultShips}
}

func fleetOf(commander types.CommanderID, wings ...types.FleetWing) types.Fleet {
	var f types.Fleet
	copy(f.Composition[:], wings)
	f.Commander = commander
	return f
}

func scenarioFleets() (types.Fleet, types.Fleet) {
	attacker := fleetOf(0,
		types.NewFleetWing(0, types.Neutral, 20),
		types.NewFleetWing(1, types.Defensive, 20),
		types.NewFleetWing(2, types.Offensive, 20),
		types.NewFleetWing(3, types.Neutral, 20),
	)
	defender := fleetOf(1,
		types.NewFleetWing(0, types.Defensive, 5),
		types.NewFleetWing(1, types.Neutral, 5),
		types.NewFleetWing(2, types.Defensive, 5),
		types.NewFleetWing(3, types.Offensive, 5),
	)
	return attacker, defender
}

func TestFightEndToEnd(t *testing.T) {
	sim := NewBattleSimulator(prepareHangar())
	attacker, defender := scenarioFleets()

	result, atkLog, defLog, err := sim.SimulateEngagement(alice, attacker, bob, defender, 1337, true)
	if err != nil {
		t.Fatalf("Should simulate engagement successfully: %v", err)
	}

	if !result.DefenderDefeated {
		t.Errorf("Expected defender to be defeated")
	}
	if result.AttackerDefeated {
		t.Errorf("Attacker should have survived")
	}
	if result.Rounds != 5 {
		t.Errorf("Rounds = %d, want 5", result.Rounds)
	}
	if result.Seed != 1337 {
		t.Errorf("Seed = %d, want 1337", result.Seed)
	}

	wantAtk := types.FleetDamageReport{{ShipID: 0, Lost: 18}, {ShipID: 1}, {ShipID: 2}, {ShipID: 3}}
	if result.AttackerDamageReport != wantAtk {
		t.Errorf("Attacker report = %+v, want %+v", result.AttackerDamageReport, wantAtk)
	}
	wantDef := types.FleetDamageReport{{ShipID: 0, Lost: 5}, {ShipID: 1, Lost: 5}, {ShipID: 2, Lost: 5}, {ShipID: 3, Lost: 5}}
	if result.DefenderDamageReport != wantDef {
		t.Errorf("Defender report = %+v, want %+v", result.DefenderDamageReport, wantDef)
	}

	if len(atkLog) != 20 || len(defLog) != 11 {
		t.Fatalf("Log sizes = %d/%d, want 20/11", len(atkLog), len(defLog))
	}
	if got, want := atkLog[0], types.Reposition(0, 0, 6); got != want {
		t.Errorf("First attacker move = %+v, want %+v", got, want)
	}
	if got, want := atkLog[3], types.Shoot(0, 3, 0, 1140, 13); got != want {
		t.Errorf("Attacker wing 3 opening shot = %+v, want %+v", got, want)
	}
	if got, want := defLog[3], types.Shoot(0, 3, 0, 440, -13); got != want {
		t.Errorf("Defender wing 3 opening shot = %+v, want %+v", got, want)
	}

	// The input fleets are reported back untouched.
	if result.AttackerFleet != attacker || result.DefenderFleet != defender {
		t.Errorf("Fleets in the result differ from the inputs")
	}
}

func TestDamageCalculation(t *testing.T) {
	hangar := prepareHangar()
	sim := NewBattleSimulator(hangar)

	attackerFleet := fleetOf(0,
		types.NewFleetWing(0, types.Neutral, 10),
		types.NewFleetWing(1, types.Defensive, 10),
		types.NewFleetWing(2, types.Offensive, 10),
		types.NewFleetWing(3, types.Neutral, 10),
	)
	defenderFleet := fleetOf(1,
		types.NewFleetWing(0, types.Offensive, 10),
		types.NewFleetWing(1, types.Neutral, 10),
		types.NewFleetWing(2, types.Defensive, 10),
		types.NewFleetWing(3, types.Offensive, 10),
	)

	atkHangar, err := sim.resolveHangar(alice, attackerFleet)
	if err != nil {
		t.Fatalf("Should generate store: %v", err)
	}
	defHangar, err := sim.resolveHangar(bob, defenderFleet)
	if err != nil {
		t.Fatalf("Should generate store: %v", err)
	}

	atk := &side{fleet: attackerFleet, hangar: atkHangar, variable: [types.MaxFleetWings]uint16{0, 1, 2, 3}}
	def := &side{fleet: defenderFleet, hangar: defHangar}

	sourceHP := uint32(atkHangar[0].HitPoints)

	tests := []struct {
		name string
		hp   uint32
		want uint32
	}{
		{"single ship", sourceHP, 80},
		{"damaged ship still counts", sourceHP - 1, 80},
		{"big stack", sourceHP * 32, 80 * 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateDamage(atk, def, 0, 0, tt.hp); got != tt.want {
				t.Errorf("calculateDamage(hp=%d) = %d, want %d", tt.hp, got, tt.want)
			}
		})
	}
}

func TestDamageIsCappedByAttackingShips(t *testing.T) {
	glass := types.Ship{HitPoints: 10, AttackBase: 1000, Defence: 0}
	atk := &side{hangar: [types.MaxFleetWings]types.Ship{glass}}
	def := &side{hangar: [types.MaxFleetWings]types.Ship{{HitPoints: 50}}}

	// 3 ships can wipe at most 3 target ships.
	if got := calculateDamage(atk, def, 0, 0, 30); got != 150 {
		t.Errorf("Damage = %d, want cap of 150", got)
	}
	// Defence above attack never heals.
	def.hangar[0].Defence = 5000
	if got := calculateDamage(atk, def, 0, 0, 30); got != 0 {
		t.Errorf("Damage = %d, want 0", got)
	}
}

func TestIsDead(t *testing.T) {
	if IsDead([]int32{20, -20, 0, 0}) {
		t.Errorf("Fleet with a live wing reported dead")
	}
	if !IsDead([]int32{-100, -20, 0, 0}) {
		t.Errorf("Fleet without live wings reported alive")
	}
}

func TestShipNotFound(t *testing.T) {
	hangar := prepareHangar()
	hangar[bob] = defaultShips[:3]
	sim := NewBattleSimulator(hangar)
	attacker, defender := scenarioFleets()

	result, atkLog, defLog, err := sim.SimulateEngagement(alice, attacker, bob, defender, 1337, true)
	if !errors.Is(err, ErrShipNotFound) {
		t.Fatalf("err = %v, want ErrShipNotFound", err)
	}
	if atkLog != nil || defLog != nil {
		t.Errorf("Logs must not exist after a failed engagement")
	}
	if result != (types.EngagementResult{}) {
		t.Errorf("Result must be empty after a failed engagement: %+v", result)
	}
}

func TestDeterminism(t *testing.T) {
	attacker, defender := scenarioFleets()

	for _, seed := range []uint64{0, 1, 1337, 0xdeadbeef, ^uint64(0)} {
		r1, a1, d1, err := NewBattleSimulator(prepareHangar()).SimulateEngagement(alice, attacker, bob, defender, seed, true)
		if err != nil {
			t.Fatal(err)
		}
		r2, a2, d2, err := NewBattleSimulator(prepareHangar()).SimulateEngagement(alice, attacker, bob, defender, seed, true)
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(types.EncodeResult(r1), types.EncodeResult(r2)) {
			t.Errorf("seed %d: results differ", seed)
		}
		if !reflect.DeepEqual(a1, a2) || !reflect.DeepEqual(d1, d2) {
			t.Errorf("seed %d: move logs differ", seed)
		}
	}
}

func TestLossConservationAndRoundBound(t *testing.T) {
	attacker, defender := scenarioFleets()
	sim := NewBattleSimulator(prepareHangar())

	for seed := uint64(0); seed < 64; seed++ {
		for _, pair := range [][2]types.Fleet{{attacker, defender}, {defender, attacker}} {
			result, _, _, err := sim.SimulateEngagement(alice, pair[0], bob, pair[1], seed, false)
			if err != nil {
				t.Fatal(err)
			}
			if result.Rounds > types.MaxRounds {
				t.Fatalf("seed %d: %d rounds", seed, result.Rounds)
			}
			for i := 0; i < types.MaxFleetWings; i++ {
				if result.AttackerDamageReport[i].Lost > pair[0].Composition[i].WingSize {
					t.Errorf("seed %d: attacker wing %d lost more ships than it had", seed, i)
				}
				if result.DefenderDamageReport[i].Lost > pair[1].Composition[i].WingSize {
					t.Errorf("seed %d: defender wing %d lost more ships than it had", seed, i)
				}
			}
		}
	}
}

func TestStalemateRunsAllRounds(t *testing.T) {
	anchored := types.Ship{HitPoints: 100, AttackBase: 50, AttackVariable: 5}
	hangar := mapHangar{alice: {anchored}, bob: {anchored}}
	fleet := fleetOf(0,
		types.NewFleetWing(0, types.Neutral, 1),
		types.NewFleetWing(0, types.Neutral, 1),
		types.NewFleetWing(0, types.Neutral, 1),
		types.NewFleetWing(0, types.Neutral, 1),
	)

	result, atkLog, defLog, err := NewBattleSimulator(hangar).SimulateEngagement(alice, fleet, bob, fleet, 7, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Rounds != types.MaxRounds {
		t.Errorf("Rounds = %d, want %d", result.Rounds, types.MaxRounds)
	}
	if result.AttackerDefeated || result.DefenderDefeated {
		t.Errorf("Nobody can reach anybody, nobody should lose")
	}
	if len(atkLog) != types.MaxLogEntries || len(defLog) != types.MaxLogEntries {
		t.Errorf("Log sizes = %d/%d, want %d", len(atkLog), len(defLog), types.MaxLogEntries)
	}
	for _, m := range atkLog {
		if m.Kind != types.MoveReposition || m.Damage != 0 {
			t.Fatalf("Unexpected move %+v", m)
		}
	}
}

func TestNoTargetOnlyRepositions(t *testing.T) {
	scout := types.Ship{HitPoints: 100, AttackBase: 50, Speed: 1, Range: 1}
	hangar := mapHangar{alice: {scout}, bob: {scout}}
	fleet := fleetOf(0, types.NewFleetWing(0, types.Neutral, 3))

	result, atkLog, defLog, err := NewBattleSimulator(hangar).SimulateEngagement(alice, fleet, bob, fleet, 99, true)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := atkLog[0], types.Reposition(0, 0, 9); got != want {
		t.Errorf("Attacker opening = %+v, want %+v", got, want)
	}
	if got, want := defLog[0], types.Reposition(0, 0, -9); got != want {
		t.Errorf("Defender opening = %+v, want %+v", got, want)
	}
	for _, m := range append(atkLog, defLog...) {
		if m.Kind == types.MoveShoot && m.Round < 9 {
			t.Errorf("Shot fired at distance in round %d", m.Round)
		}
	}
	if result.Rounds == 0 {
		t.Errorf("Engagement never started")
	}
}

func TestSimultaneousResolution(t *testing.T) {
	duelist := types.Ship{HitPoints: 100, AttackBase: 200, Range: 30}
	hangar := mapHangar{alice: {duelist}, bob: {duelist}}
	fleet := fleetOf(0, types.NewFleetWing(0, types.Neutral, 1))

	result, _, _, err := NewBattleSimulator(hangar).SimulateEngagement(alice, fleet, bob, fleet, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", result.Rounds)
	}
	if !result.AttackerDefeated || !result.DefenderDefeated {
		t.Errorf("Both wings fire on the round snapshot and should destroy each other: %+v", result)
	}
}

// The attacker is only beaten by a fleet that had ships. The defender is
// beaten whenever it ends empty, even if it started empty.
func TestDefeatAsymmetry(t *testing.T) {
	hangar := prepareHangar()
	full, _ := scenarioFleets()
	empty := fleetOf(0)

	tests := []struct {
		name             string
		attacker         types.Fleet
		defender         types.Fleet
		attackerDefeated bool
		defenderDefeated bool
	}{
		{"empty defender", full, empty, false, true},
		{"empty attacker", empty, full, true, false},
		{"both empty", empty, empty, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, _, err := NewBattleSimulator(hangar).SimulateEngagement(alice, tt.attacker, bob, tt.defender, 5, false)
			if err != nil {
				t.Fatal(err)
			}
			if result.Rounds != 0 {
				t.Errorf("Rounds = %d, want 0", result.Rounds)
			}
			if result.AttackerDefeated != tt.attackerDefeated || result.DefenderDefeated != tt.defenderDefeated {
				t.Errorf("defeated = %v/%v, want %v/%v", result.AttackerDefeated, result.DefenderDefeated, tt.attackerDefeated, tt.defenderDefeated)
			}
		})
	}
}

func TestTarget(t *testing.T) {
	ship := types.Ship{Range: 4, Speed: 4}
	alive := [types.MaxFleetWings]int32{1, 1, 1, 1}

	tests := []struct {
		name     string
		pos      types.BoardPosition
		enemyPos [types.MaxFleetWings]types.BoardPosition
		enemyHP  [types.MaxFleetWings]int32
		wantIdx  int
		wantMove int32
		wantOK   bool
	}{
		{"all in range picks lowest index", 0, [4]types.BoardPosition{-1, -2, -3, -4}, alive, 0, 0, true},
		{"dead wings skipped", 0, [4]types.BoardPosition{-1, -2, -3, -4}, [4]int32{0, -5, 1, 1}, 2, 0, true},
		{"needs to close in", 10, [4]types.BoardPosition{3, -11, -12, -13}, alive, 0, 3, true},
		{"out of reach", 10, [4]types.BoardPosition{-10, -11, -12, -13}, alive, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, move, ok := target(ship, tt.pos, tt.enemyPos, tt.enemyHP)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (idx != tt.wantIdx || move != tt.wantMove) {
				t.Errorf("target = (%d, %d), want (%d, %d)", idx, move, tt.wantIdx, tt.wantMove)
			}
		})
	}
}

func TestDegenerateShips(t *testing.T) {
	hollow := types.Ship{HitPoints: 0, AttackBase: 10}
	fixed := types.Ship{HitPoints: 10, AttackBase: 10, AttackVariable: 0, Range: 30}
	hangar := mapHangar{alice: {fixed}, bob: {hollow, fixed}}

	attacker := fleetOf(0, types.NewFleetWing(0, types.Neutral, 2))
	defender := fleetOf(0, types.NewFleetWing(0, types.Neutral, 4), types.NewFleetWing(1, types.Neutral, 1))

	result, _, _, err := NewBattleSimulator(hangar).SimulateEngagement(alice, attacker, bob, defender, 12345, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.DefenderDamageReport[0].Lost != 4 {
		t.Errorf("Zero hit point wing should be reported lost, got %d", result.DefenderDamageReport[0].Lost)
	}
}
