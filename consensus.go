package main

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"newomega/pkg/core"
)

var errLedgerBroken = errors.New("ledger chain broken")

// ledgerHead returns the newest sequence number and final hash. An empty
// ledger hangs off the genesis hash at seq 0.
func ledgerHead(q querier) (int64, string, error) {
	var seq int64
	var head string
	err := q.QueryRow("SELECT seq, final_hash FROM ledger ORDER BY seq DESC LIMIT 1").Scan(&seq, &head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, GenesisHash, nil
	}
	return seq, head, err
}

// appendLedger records a state-changing action. Callers pass the same querier
// the state change ran on so both commit together.
func appendLedger(q querier, action string, payload []byte) (LedgerEntry, error) {
	seq, prev, err := ledgerHead(q)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry := LedgerEntry{
		Seq:         seq + 1,
		Timestamp:   time.Now().Unix(),
		ActionType:  action,
		PayloadHash: core.Hash(payload),
		PrevHash:    prev,
	}
	entry.FinalHash = core.ChainHash(entry.PrevHash, entry.ActionType, entry.PayloadHash)
	entry.Signature = core.SignMessage(PrivateKey, []byte(entry.FinalHash))

	_, err = q.Exec(`INSERT INTO ledger (seq, timestamp, action_type, payload_hash, prev_hash, final_hash, signature)
	                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.Timestamp, entry.ActionType, entry.PayloadHash, entry.PrevHash, entry.FinalHash, entry.Signature)
	if err != nil {
		return LedgerEntry{}, fmt.Errorf("append ledger: %w", err)
	}
	return entry, nil
}

// randomHash mixes the ledger head, a phrase and the account's nonce. The
// nonce is consumed so the same account never sees the same hash twice.
func randomHash(q querier, phrase string, account string) ([]byte, error) {
	_, head, err := ledgerHead(q)
	if err != nil {
		return nil, err
	}
	if _, err := q.Exec("INSERT OR IGNORE INTO players (account, credits) VALUES (?, ?)", account, Config.StartingCredits); err != nil {
		return nil, err
	}
	var nonce uint64
	if err := q.QueryRow("SELECT nonce FROM players WHERE account=?", account).Scan(&nonce); err != nil {
		return nil, err
	}
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)

	sum := core.SumParts([]byte(head), []byte(phrase), []byte(account), nb[:])
	if _, err := q.Exec("UPDATE players SET nonce=nonce+1 WHERE account=?", account); err != nil {
		return nil, err
	}
	return sum[:], nil
}

func engagementSeed(q querier, attacker string) (uint64, error) {
	hash, err := randomHash(q, phraseEngagement, attacker)
	if err != nil {
		return 0, err
	}
	return core.NewDiceRoller(hash, core.HashSize, 255).NextSeed(), nil
}

// auditLedger walks the whole chain from genesis, recomputing every hash and
// checking every signature. It returns how many entries verified.
func auditLedger(q querier) (int, error) {
	rows, err := q.Query("SELECT seq, action_type, payload_hash, prev_hash, final_hash, signature FROM ledger ORDER BY seq")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	prev := GenesisHash
	var expectSeq int64 = 1
	count := 0
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.Seq, &e.ActionType, &e.PayloadHash, &e.PrevHash, &e.FinalHash, &e.Signature); err != nil {
			return count, err
		}
		switch {
		case e.Seq != expectSeq:
			return count, fmt.Errorf("%w: expected seq %d, got %d", errLedgerBroken, expectSeq, e.Seq)
		case e.PrevHash != prev:
			return count, fmt.Errorf("%w: seq %d does not follow %s", errLedgerBroken, e.Seq, prev)
		case core.ChainHash(e.PrevHash, e.ActionType, e.PayloadHash) != e.FinalHash:
			return count, fmt.Errorf("%w: seq %d hash mismatch", errLedgerBroken, e.Seq)
		case !core.VerifySignature(PublicKey, []byte(e.FinalHash), e.Signature):
			return count, fmt.Errorf("%w: seq %d bad signature", errLedgerBroken, e.Seq)
		}
		prev = e.FinalHash
		expectSeq++
		count++
	}
	return count, rows.Err()
}
