package types

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// --- Canonical Encoding ---
// Results and logs are stored and hashed in protobuf wire format. Every field
// is written, in field-number order, so equal values always produce equal bytes.

var ErrMalformed = errors.New("malformed encoding")

const (
	fleetWing      protowire.Number = 1
	fleetCommander protowire.Number = 2

	wingShipID    protowire.Number = 1
	wingFormation protowire.Number = 2
	wingSize      protowire.Number = 3

	resAttackerFleet    protowire.Number = 1
	resDefenderFleet    protowire.Number = 2
	resAttackerDefeated protowire.Number = 3
	resDefenderDefeated protowire.Number = 4
	resRounds           protowire.Number = 5
	resSeed             protowire.Number = 6
	resAttackerLoss     protowire.Number = 7
	resDefenderLoss     protowire.Number = 8

	lossShipID protowire.Number = 1
	lossLost   protowire.Number = 2

	logMove protowire.Number = 1

	moveKind     protowire.Number = 1
	moveRound    protowire.Number = 2
	moveFrom     protowire.Number = 3
	moveTo       protowire.Number = 4
	moveDamage   protowire.Number = 5
	movePosition protowire.Number = 6
)

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendFleet(b []byte, f Fleet) []byte {
	for _, w := range f.Composition {
		var wb []byte
		wb = appendUint(wb, wingShipID, uint64(w.ShipID))
		wb = appendUint(wb, wingFormation, uint64(w.Formation))
		wb = appendUint(wb, wingSize, uint64(w.WingSize))
		b = appendMessage(b, fleetWing, wb)
	}
	return appendUint(b, fleetCommander, uint64(f.Commander))
}

func appendReport(b []byte, num protowire.Number, r FleetDamageReport) []byte {
	for _, l := range r {
		var lb []byte
		lb = appendUint(lb, lossShipID, uint64(l.ShipID))
		lb = appendUint(lb, lossLost, uint64(l.Lost))
		b = appendMessage(b, num, lb)
	}
	return b
}

// EncodeResult returns the canonical encoding of r.
func EncodeResult(r EngagementResult) []byte {
	var b []byte
	b = appendMessage(b, resAttackerFleet, appendFleet(nil, r.AttackerFleet))
	b = appendMessage(b, resDefenderFleet, appendFleet(nil, r.DefenderFleet))
	b = appendUint(b, resAttackerDefeated, protowire.EncodeBool(r.AttackerDefeated))
	b = appendUint(b, resDefenderDefeated, protowire.EncodeBool(r.DefenderDefeated))
	b = appendUint(b, resRounds, uint64(r.Rounds))
	b = appendUint(b, resSeed, r.Seed)
	b = appendReport(b, resAttackerLoss, r.AttackerDamageReport)
	b = appendReport(b, resDefenderLoss, r.DefenderDamageReport)
	return b
}

// EncodeLog returns the canonical encoding of a move log.
func EncodeLog(l EngagementLog) []byte {
	var b []byte
	for _, m := range l {
		var mb []byte
		mb = appendUint(mb, moveKind, uint64(m.Kind))
		mb = appendUint(mb, moveRound, uint64(m.Round))
		mb = appendUint(mb, moveFrom, uint64(m.From))
		mb = appendUint(mb, moveTo, uint64(m.To))
		mb = appendUint(mb, moveDamage, uint64(m.Damage))
		mb = appendUint(mb, movePosition, protowire.EncodeZigZag(int64(m.TargetPosition)))
		b = appendMessage(b, logMove, mb)
	}
	return b
}

// --- Decoding ---

// walk calls fn for every field in b. fn receives the raw varint for varint
// fields and the payload for length-delimited ones.
func walk(b []byte, fn func(num protowire.Number, v uint64, payload []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, v, nil); err != nil {
				return err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, 0, v); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nil
}

func narrow8(num protowire.Number, v uint64) (uint8, error) {
	if v > math.MaxUint8 {
		return 0, fmt.Errorf("%w: field %d out of range", ErrMalformed, num)
	}
	return uint8(v), nil
}

func decodeFleet(b []byte) (Fleet, error) {
	var f Fleet
	wings := 0
	err := walk(b, func(num protowire.Number, v uint64, payload []byte) error {
		switch num {
		case fleetWing:
			if wings >= MaxFleetWings {
				return fmt.Errorf("%w: more than %d wings", ErrMalformed, MaxFleetWings)
			}
			var w FleetWing
			err := walk(payload, func(num protowire.Number, v uint64, _ []byte) error {
				n, err := narrow8(num, v)
				if err != nil {
					return err
				}
				switch num {
				case wingShipID:
					w.ShipID = n
				case wingFormation:
					w.Formation = WingFormation(n)
					if !w.Formation.Valid() {
						return fmt.Errorf("%w: formation %d", ErrMalformed, n)
					}
				case wingSize:
					w.WingSize = n
				}
				return nil
			})
			if err != nil {
				return err
			}
			f.Composition[wings] = w
			wings++
		case fleetCommander:
			c, err := narrow8(num, v)
			if err != nil {
				return err
			}
			f.Commander = c
		}
		return nil
	})
	if err != nil {
		return Fleet{}, err
	}
	if wings != MaxFleetWings {
		return Fleet{}, fmt.Errorf("%w: fleet has %d wings", ErrMalformed, wings)
	}
	return f, nil
}

func decodeLoss(b []byte) (ShipLoss, error) {
	var l ShipLoss
	err := walk(b, func(num protowire.Number, v uint64, _ []byte) error {
		n, err := narrow8(num, v)
		if err != nil {
			return err
		}
		switch num {
		case lossShipID:
			l.ShipID = n
		case lossLost:
			l.Lost = n
		}
		return nil
	})
	return l, err
}

// DecodeResult parses the output of EncodeResult.
func DecodeResult(b []byte) (EngagementResult, error) {
	var r EngagementResult
	var atkLosses, defLosses int
	err := walk(b, func(num protowire.Number, v uint64, payload []byte) error {
		var err error
		switch num {
		case resAttackerFleet:
			r.AttackerFleet, err = decodeFleet(payload)
		case resDefenderFleet:
			r.DefenderFleet, err = decodeFleet(payload)
		case resAttackerDefeated:
			r.AttackerDefeated = protowire.DecodeBool(v)
		case resDefenderDefeated:
			r.DefenderDefeated = protowire.DecodeBool(v)
		case resRounds:
			r.Rounds, err = narrow8(num, v)
		case resSeed:
			r.Seed = v
		case resAttackerLoss:
			if atkLosses >= MaxFleetWings {
				return fmt.Errorf("%w: attacker report too long", ErrMalformed)
			}
			r.AttackerDamageReport[atkLosses], err = decodeLoss(payload)
			atkLosses++
		case resDefenderLoss:
			if defLosses >= MaxFleetWings {
				return fmt.Errorf("%w: defender report too long", ErrMalformed)
			}
			r.DefenderDamageReport[defLosses], err = decodeLoss(payload)
			defLosses++
		}
		return err
	})
	if err != nil {
		return EngagementResult{}, err
	}
	return r, nil
}

// DecodeLog parses the output of EncodeLog.
func DecodeLog(b []byte) (EngagementLog, error) {
	var l EngagementLog
	err := walk(b, func(num protowire.Number, _ uint64, payload []byte) error {
		if num != logMove {
			return nil
		}
		var m Move
		err := walk(payload, func(num protowire.Number, v uint64, _ []byte) error {
			var err error
			switch num {
			case moveKind:
				if v > uint64(MoveReposition) {
					return fmt.Errorf("%w: move kind %d", ErrMalformed, v)
				}
				m.Kind = MoveKind(v)
			case moveRound:
				m.Round, err = narrow8(num, v)
			case moveFrom:
				m.From, err = narrow8(num, v)
			case moveTo:
				m.To, err = narrow8(num, v)
			case moveDamage:
				if v > math.MaxUint32 {
					return fmt.Errorf("%w: damage out of range", ErrMalformed)
				}
				m.Damage = uint32(v)
			case movePosition:
				p := protowire.DecodeZigZag(v)
				if p > math.MaxInt16 || p < math.MinInt16 {
					return fmt.Errorf("%w: position out of range", ErrMalformed)
				}
				m.TargetPosition = BoardPosition(p)
			}
			return err
		})
		if err != nil {
			return err
		}
		if !l.Append(m) {
			return fmt.Errorf("%w: log exceeds %d entries", ErrMalformed, MaxLogEntries)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}
