package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"newomega/pkg/core"
	"newomega/pkg/game"
	"newomega/pkg/types"
)

// Scenario is one offline engagement. Either Seed or Hash is set; a hash is
// turned into a seed the same way the node does it.
type Scenario struct {
	Seed     *uint64 `yaml:"seed"`
	Hash     string  `yaml:"hash"`
	LogMoves bool    `yaml:"log_moves"`
	Attacker Side    `yaml:"attacker"`
	Defender Side    `yaml:"defender"`
}

type Side struct {
	Account   types.AccountID             `yaml:"account"`
	Hangar    map[types.ShipID]types.Ship `yaml:"hangar"`
	Commander types.CommanderID           `yaml:"commander"`
	Wings     []Wing                      `yaml:"wings"`
}

type Wing struct {
	Ship      types.ShipID `yaml:"ship"`
	Formation string       `yaml:"formation"`
	Size      uint8        `yaml:"size"`
}

type Report struct {
	Result      types.EngagementResult `json:"result"`
	AttackerLog types.EngagementLog    `json:"attacker_log,omitempty"`
	DefenderLog types.EngagementLog    `json:"defender_log,omitempty"`
}

func (s Side) fleet() (types.Fleet, error) {
	var f types.Fleet
	if len(s.Wings) != types.MaxFleetWings {
		return f, fmt.Errorf("%s: fleet needs %d wings, got %d", s.Account, types.MaxFleetWings, len(s.Wings))
	}
	for i, w := range s.Wings {
		formation := types.Neutral
		if w.Formation != "" {
			var err error
			if formation, err = types.ParseFormation(w.Formation); err != nil {
				return f, fmt.Errorf("%s wing %d: %w", s.Account, i, err)
			}
		}
		f.Composition[i] = types.NewFleetWing(w.Ship, formation, w.Size)
	}
	f.Commander = s.Commander
	return f, nil
}

func loadScenario(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return sc, err
	}
	if sc.Attacker.Account == "" || sc.Defender.Account == "" {
		return sc, errors.New("both sides need an account")
	}
	if sc.Seed == nil && sc.Hash == "" {
		return sc, errors.New("scenario needs a seed or a hash")
	}
	return sc, nil
}

func (sc Scenario) seed() (uint64, error) {
	if sc.Seed != nil {
		return *sc.Seed, nil
	}
	raw, err := hex.DecodeString(sc.Hash)
	if err != nil {
		return 0, fmt.Errorf("hash: %w", err)
	}
	return core.NewDiceRoller(raw, core.HashSize, 255).NextSeed(), nil
}

// run resolves the scenario with the same simulator the node uses.
func run(sc Scenario) (Report, error) {
	atkFleet, err := sc.Attacker.fleet()
	if err != nil {
		return Report{}, err
	}
	defFleet, err := sc.Defender.fleet()
	if err != nil {
		return Report{}, err
	}
	seed, err := sc.seed()
	if err != nil {
		return Report{}, err
	}

	hangars := map[types.AccountID]map[types.ShipID]types.Ship{
		sc.Attacker.Account: sc.Attacker.Hangar,
		sc.Defender.Account: sc.Defender.Hangar,
	}
	hangar := game.HangarFunc(func(account types.AccountID, id types.ShipID) (types.Ship, bool) {
		ship, ok := hangars[account][id]
		return ship, ok
	})

	result, atkLog, defLog, err := game.NewBattleSimulator(hangar).
		SimulateEngagement(sc.Attacker.Account, atkFleet, sc.Defender.Account, defFleet, seed, sc.LogMoves)
	if err != nil {
		return Report{}, err
	}
	return Report{Result: result, AttackerLog: atkLog, DefenderLog: defLog}, nil
}

func printSummary(w io.Writer, sc Scenario, rep Report) {
	res := rep.Result
	fmt.Fprintf(w, "Seed %d | Rounds %d\n", res.Seed, res.Rounds)
	fmt.Fprintf(w, "%s (attacker) defeated: %t\n", sc.Attacker.Account, res.AttackerDefeated)
	fmt.Fprintf(w, "%s (defender) defeated: %t\n", sc.Defender.Account, res.DefenderDefeated)
	for i := 0; i < types.MaxFleetWings; i++ {
		a, d := res.AttackerDamageReport[i], res.DefenderDamageReport[i]
		fmt.Fprintf(w, "  wing %d: attacker ship %d lost %d/%d | defender ship %d lost %d/%d\n", i,
			a.ShipID, a.Lost, res.AttackerFleet.Composition[i].WingSize,
			d.ShipID, d.Lost, res.DefenderFleet.Composition[i].WingSize)
	}
	for name, log := range map[string]types.EngagementLog{"attacker": rep.AttackerLog, "defender": rep.DefenderLog} {
		if log == nil {
			continue
		}
		fmt.Fprintf(w, "%s moves (%d):\n", name, len(log))
		for _, m := range log {
			if m.Kind == types.MoveShoot {
				fmt.Fprintf(w, "  r%02d wing %d shoots wing %d for %d at %d\n", m.Round, m.From, m.To, m.Damage, m.TargetPosition)
			} else {
				fmt.Fprintf(w, "  r%02d wing %d moves to %d\n", m.Round, m.From, m.TargetPosition)
			}
		}
	}
}

func main() {
	var flagConfig string
	var flagJSON bool
	flag.StringVar(&flagConfig, "config", "", "YAML scenario file (stdin when empty)")
	flag.BoolVar(&flagJSON, "json", false, "print the full report as JSON")
	flag.Parse()

	in := io.Reader(os.Stdin)
	if flagConfig != "" {
		f, err := os.Open(flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	sc, err := loadScenario(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scenario: %v\n", err)
		os.Exit(1)
	}
	rep, err := run(sc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		os.Exit(1)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
		return
	}
	printSummary(os.Stdout, sc, rep)
}
