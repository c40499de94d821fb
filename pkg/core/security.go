package core

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
)

var bufferPool = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

// --- Compression ---

func Compress(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	w := lz4.NewWriter(buf)
	if _, err := w.Write(src); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}

	// Return strictly sized slice
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func Decompress(src []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	defer bufferPool.Put(buf)
	buf.Reset()

	r := lz4.NewReader(bytes.NewReader(src))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("lz4 read: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// --- Hashing ---

const HashSize = 32

func Sum(data []byte) [HashSize]byte {
	return blake3.Sum256(data)
}

// SumParts hashes the concatenation of parts, each prefixed with its length
// so that ("ab","c") and ("a","bc") differ.
func SumParts(parts ...[]byte) [HashSize]byte {
	h := blake3.New(HashSize, nil)
	var lenBuf [8]byte
	for _, p := range parts {
		n := uint64(len(p))
		for i := range lenBuf {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ChainHash links a ledger entry to its predecessor.
func ChainHash(prev, action, payloadHash string) string {
	sum := SumParts([]byte(prev), []byte(action), []byte(payloadHash))
	return hex.EncodeToString(sum[:])
}

// --- Identity ---

func SignMessage(privKey ed25519.PrivateKey, msg []byte) []byte {
	if len(privKey) != ed25519.PrivateKeySize {
		return nil
	}
	return ed25519.Sign(privKey, msg)
}

func VerifySignature(pubKey ed25519.PublicKey, msg, sig []byte) bool {
	if len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pubKey, msg, sig)
}
