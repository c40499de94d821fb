package core

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("fleet wing report "), 200)

	packed, err := Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(packed) >= len(src) {
		t.Errorf("Repetitive input did not shrink: %d >= %d", len(packed), len(src))
	}

	out, err := Decompress(packed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Errorf("Round trip changed the payload")
	}
}

func TestDecompressGarbage(t *testing.T) {
	if _, err := Decompress([]byte("not an lz4 frame")); err == nil {
		t.Errorf("Expected an error for a corrupt frame")
	}
}

func TestSumPartsIsFramed(t *testing.T) {
	if SumParts([]byte("ab"), []byte("c")) == SumParts([]byte("a"), []byte("bc")) {
		t.Errorf("Different splits hashed to the same value")
	}
	if SumParts([]byte("x")) != SumParts([]byte("x")) {
		t.Errorf("Hash is not stable")
	}
	if len(Hash([]byte("x"))) != 2*HashSize {
		t.Errorf("Hex hash has the wrong length")
	}
}

func TestChainHash(t *testing.T) {
	a := ChainHash("genesis", "SHIP_REGISTERED", Hash([]byte("payload")))
	if a != ChainHash("genesis", "SHIP_REGISTERED", Hash([]byte("payload"))) {
		t.Errorf("Chain hash is not stable")
	}
	if a == ChainHash("other", "SHIP_REGISTERED", Hash([]byte("payload"))) {
		t.Errorf("Chain hash ignores the previous hash")
	}
	if a == ChainHash("genesis", "LOOT_CRATE", Hash([]byte("payload"))) {
		t.Errorf("Chain hash ignores the action")
	}
}

func TestSignatures(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("ledger entry")
	sig := SignMessage(priv, msg)

	if !VerifySignature(pub, msg, sig) {
		t.Errorf("Valid signature rejected")
	}
	if VerifySignature(pub, []byte("tampered"), sig) {
		t.Errorf("Signature accepted for a different message")
	}
	if VerifySignature(pub[:10], msg, sig) {
		t.Errorf("Short key accepted")
	}
}
