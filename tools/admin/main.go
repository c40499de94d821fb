package main

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"newomega/pkg/core"
)

type adminConfig struct {
	DBPath     string `env:"OMEGA_DB_PATH" envDefault:"./data/omega.db"`
	DBDriver   string `env:"OMEGA_DB_DRIVER" envDefault:"sqlite3"`
	Server     string `env:"OMEGA_SERVER" envDefault:"http://localhost:8080"`
	AdminToken string `env:"OMEGA_ADMIN_TOKEN"`
}

var cfg adminConfig
var db *sql.DB

func main() {
	var err error
	if cfg, err = env.ParseAs[adminConfig](); err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		fmt.Printf("No database at %s. Start the node first.\n", cfg.DBPath)
		os.Exit(1)
	}
	db, err = sql.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	// CLI Argument Mode (Non-Interactive)
	if len(os.Args) > 1 {
		handleCLI(os.Args[1:])
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Println("\n========================================")
		fmt.Println("   NEW OMEGA ADMINISTRATION CONSOLE")
		fmt.Println("========================================")
		fmt.Println("1. List Players")
		fmt.Println("2. Set Organizer")
		fmt.Println("3. Verify Ledger")
		fmt.Println("4. Delete Player")
		fmt.Println("5. Exit")
		fmt.Println("========================================")
		fmt.Print("Select Option: ")

		if !scanner.Scan() {
			break
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			listPlayers()
		case "2":
			fmt.Print("Organizer account: ")
			scanner.Scan()
			setOrganizer(strings.TrimSpace(scanner.Text()))
		case "3":
			verifyLedger()
		case "4":
			deletePlayerInteractive(scanner)
		case "5":
			fmt.Println("Exiting.")
			return
		default:
			fmt.Println("Invalid option.")
		}
	}
}

func handleCLI(args []string) {
	switch args[0] {
	case "list":
		listPlayers()
	case "verify":
		if !verifyLedger() {
			os.Exit(1)
		}
	case "organizer":
		if len(args) < 2 {
			fmt.Println("Usage: organizer <account>")
			return
		}
		setOrganizer(args[1])
	case "delete":
		if len(args) < 3 || args[2] != "CONFIRM" {
			fmt.Println("Usage: delete <account> CONFIRM")
			return
		}
		performDelete(args[1])
	default:
		fmt.Println("Unknown command. Available commands: list, verify, organizer, delete")
	}
}

func listPlayers() {
	rows, err := db.Query(`SELECT p.account, p.credits, p.ranked_wins, p.ranked_losses,
	                       (SELECT COUNT(*) FROM ships s WHERE s.account = p.account),
	                       (SELECT COUNT(*) FROM commanders c WHERE c.account = p.account)
	                       FROM players p ORDER BY p.ranked_wins DESC, p.account ASC`)
	if err != nil {
		fmt.Printf("Error querying players: %v\n", err)
		return
	}
	defer rows.Close()

	fmt.Println("\nAccount              | Credits | Wins | Losses | Ships | Cmdrs")
	fmt.Println("---------------------|---------|------|--------|-------|------")
	for rows.Next() {
		var account string
		var credits, wins, losses, ships, cmdrs int64
		if err := rows.Scan(&account, &credits, &wins, &losses, &ships, &cmdrs); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("%-20s | %-7d | %-4d | %-6d | %-5d | %d\n", account, credits, wins, losses, ships, cmdrs)
	}
}

// setOrganizer goes through the running node so the change lands on its ledger.
func setOrganizer(account string) {
	if account == "" {
		fmt.Println("Error: account cannot be empty.")
		return
	}
	if cfg.AdminToken == "" {
		fmt.Println("Error: OMEGA_ADMIN_TOKEN is not set.")
		return
	}
	body, _ := json.Marshal(map[string]string{"organizer": account})
	req, err := http.NewRequest(http.MethodPost, cfg.Server+"/api/organizer", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", cfg.AdminToken)

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		fmt.Printf("Connection Error: %v\n", err)
		return
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("[%d] %s\n", resp.StatusCode, strings.TrimSpace(string(out)))
}

func meta(key string) string {
	var v string
	db.QueryRow("SELECT value FROM system_meta WHERE key=?", key).Scan(&v)
	return v
}

// verifyLedger walks the chain offline with the node's public key.
func verifyLedger() bool {
	genesis := meta("genesis_hash")
	pubBytes, err := hex.DecodeString(meta("pub_key"))
	if err != nil || genesis == "" {
		fmt.Println("Error: node identity missing from system_meta.")
		return false
	}
	pub := ed25519.PublicKey(pubBytes)

	rows, err := db.Query("SELECT seq, action_type, payload_hash, prev_hash, final_hash, signature FROM ledger ORDER BY seq")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	defer rows.Close()

	prev := genesis
	count := 0
	for rows.Next() {
		var seq int64
		var action, payloadHash, prevHash, finalHash string
		var sig []byte
		if err := rows.Scan(&seq, &action, &payloadHash, &prevHash, &finalHash, &sig); err != nil {
			fmt.Printf("Error: %v\n", err)
			return false
		}
		if prevHash != prev || core.ChainHash(prevHash, action, payloadHash) != finalHash {
			fmt.Printf("BROKEN at seq %d (%s)\n", seq, action)
			return false
		}
		if !core.VerifySignature(pub, []byte(finalHash), sig) {
			fmt.Printf("BAD SIGNATURE at seq %d (%s)\n", seq, action)
			return false
		}
		prev = finalHash
		count++
	}
	fmt.Printf("Ledger OK: %d entries, head %s\n", count, prev)
	return true
}

func deletePlayerInteractive(scanner *bufio.Scanner) {
	fmt.Println("\n--- DELETE PLAYER ---")
	fmt.Print("Enter account to DELETE: ")
	scanner.Scan()
	account := strings.TrimSpace(scanner.Text())

	fmt.Printf("WARNING: This will wipe %s with all ships, commanders, fleets and history.\n", account)
	fmt.Print("Type 'CONFIRM' to proceed: ")
	scanner.Scan()
	if strings.TrimSpace(scanner.Text()) != "CONFIRM" {
		fmt.Println("Deletion cancelled.")
		return
	}
	performDelete(account)
}

func performDelete(account string) {
	for _, table := range []string{"ships", "commanders", "fleets", "engagements", "engagement_logs"} {
		if _, err := db.Exec("DELETE FROM "+table+" WHERE account=?", account); err != nil {
			fmt.Printf("Error deleting %s: %v\n", table, err)
		}
	}
	res, err := db.Exec("DELETE FROM players WHERE account=?", account)
	if err != nil {
		fmt.Println("Error deleting player:", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		fmt.Println("Player deleted successfully.")
	} else {
		fmt.Println("Account not found.")
	}
}
