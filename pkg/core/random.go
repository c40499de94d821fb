package core

import "encoding/binary"

// DiceRoller turns a hash into a repeatable, cyclic stream of bytes reduced
// modulo a fixed bound. Identical hashes and call sequences produce identical
// output on every platform.
type DiceRoller struct {
	buf     []byte
	cursor  int
	modulus uint8
}

// NewDiceRoller copies the first size bytes of hash into the roller, padding
// with zeroes when hash is shorter. A zero modulus disables the reduction.
func NewDiceRoller(hash []byte, size int, modulus uint8) *DiceRoller {
	if size < 1 {
		size = HashSize
	}
	buf := make([]byte, size)
	copy(buf, hash)
	return &DiceRoller{buf: buf, modulus: modulus}
}

// Next returns the byte under the cursor and advances it, wrapping at the end
// of the buffer.
func (d *DiceRoller) Next() uint8 {
	b := d.buf[d.cursor]
	d.cursor = (d.cursor + 1) % len(d.buf)
	if d.modulus == 0 {
		return b
	}
	return b % d.modulus
}

// NextSeed draws eight bytes and reads them as a little-endian uint64.
func (d *DiceRoller) NextSeed() uint64 {
	var b [8]byte
	for i := range b {
		b[i] = d.Next()
	}
	return binary.LittleEndian.Uint64(b[:])
}
