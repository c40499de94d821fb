package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var ServerURL = "http://localhost:8080"
var CurrentUser string

var client = &http.Client{Timeout: 10 * time.Second}

type StatusResponse struct {
	UUID      string `json:"uuid"`
	Organizer string `json:"organizer"`
	LedgerSeq int64  `json:"ledger_seq"`
	Head      string `json:"head"`
	Clients   int    `json:"clients"`
}

func main() {
	if u := os.Getenv("OMEGA_SERVER"); u != "" {
		ServerURL = u
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("New Omega Fleet Client")
	fmt.Printf("Target Server: %s\n", ServerURL)

	for {
		if !loginLoop(reader) {
			return
		}

		fmt.Println("\n--- COMMAND LINK ESTABLISHED ---")
		fmt.Printf("Welcome, Commander %s.\n", CurrentUser)
		fmt.Println("Type 'help' for commands.")

		logout := false
		for !logout {
			fmt.Printf("[%s]> ", CurrentUser)
			text, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			parts := strings.Fields(strings.TrimSpace(text))
			if len(parts) == 0 {
				continue
			}

			switch parts[0] {
			case "status":
				doStatus()
			case "me":
				doGet("/api/player")
			case "crate":
				doPost("/api/loot-crate", nil)
			case "ship":
				if len(parts) < 8 {
					fmt.Println("Usage: ship <cp> <hp> <atk> <atk_var> <def> <speed> <range>")
					continue
				}
				doShip(parts[1:8])
			case "defense", "offense":
				if len(parts) < 14 {
					fmt.Printf("Usage: %s <commander> then 4x <ship_id> <formation> <size>\n", parts[0])
					continue
				}
				doFleet(parts[0], parts[1:14])
			case "engage":
				if len(parts) < 2 {
					fmt.Println("Usage: engage <account>")
					continue
				}
				doPost("/api/engage", map[string]string{"target": parts[1]})
			case "history":
				doGet("/api/engagements")
			case "log":
				if len(parts) < 2 {
					fmt.Println("Usage: log <log_id>")
					continue
				}
				doGet("/api/logs/" + parts[1])
			case "board":
				doGet("/api/leaderboard")
			case "audit":
				doGet("/api/ledger/audit")
			case "watch":
				doWatch()
			case "help":
				fmt.Println("Available Commands:")
				fmt.Println("  status                              - Node identity and ledger head")
				fmt.Println("  me                                  - Your ships, commanders and fleets")
				fmt.Println("  crate                               - Buy a loot crate")
				fmt.Println("  ship <cp> <hp> <atk> <var> <def> <spd> <rng> - Register a ship")
				fmt.Println("  defense|offense <cmdr> <id fm sz>x4 - Register a fleet (fm: 0 neutral, 1 def, 2 off)")
				fmt.Println("  engage <account>                    - Attack another player's defense")
				fmt.Println("  history | log <id>                  - Past engagements and move logs")
				fmt.Println("  board | audit | watch               - Leaderboard, ledger audit, live events")
				fmt.Println("  logout | quit")
			case "logout":
				fmt.Println("Logging out...")
				logout = true
				CurrentUser = ""
			case "quit", "exit":
				fmt.Println("Disconnecting...")
				os.Exit(0)
			default:
				fmt.Println("Unknown command. Type 'help' for options.")
			}
		}
	}
}

func loginLoop(reader *bufio.Reader) bool {
	for {
		fmt.Println("\n--- IDENTIFY ---")
		fmt.Print("Account: ")
		user, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		user = strings.TrimSpace(user)
		if user == "quit" || user == "exit" {
			return false
		}
		if user == "" {
			continue
		}
		CurrentUser = user
		return true
	}
}

func request(method, path string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ServerURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", CurrentUser)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

func show(status int, body []byte) {
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		body = pretty.Bytes()
	}
	fmt.Printf("[%d] %s\n", status, strings.TrimSpace(string(body)))
}

func doGet(path string) {
	status, body, err := request(http.MethodGet, path, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	show(status, body)
}

func doPost(path string, payload interface{}) {
	status, body, err := request(http.MethodPost, path, payload)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	show(status, body)
}

func doStatus() {
	_, body, err := request(http.MethodGet, "/api/status", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	var s StatusResponse
	if err := json.Unmarshal(body, &s); err != nil {
		fmt.Printf("Protocol Error: %v\n", err)
		return
	}
	uuidDisp, headDisp := s.UUID, s.Head
	if len(uuidDisp) > 8 {
		uuidDisp = uuidDisp[:8]
	}
	if len(headDisp) > 8 {
		headDisp = headDisp[:8]
	}
	if s.Organizer == "" {
		s.Organizer = "unset"
	}
	fmt.Printf("Node: %s | Ledger: #%d %s | Organizer: %s | Watchers: %d\n", uuidDisp, s.LedgerSeq, headDisp, s.Organizer, s.Clients)
}

func parseUints(args []string, bits int) ([]uint64, error) {
	out := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i+1, a, err)
		}
		out[i] = v
	}
	return out, nil
}

func doShip(args []string) {
	stats, err := parseUints(args[:5], 16)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	motion, err := parseUints(args[5:7], 8)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	doPost("/api/ships", map[string]interface{}{
		"command_power":   stats[0],
		"hit_points":      stats[1],
		"attack_base":     stats[2],
		"attack_variable": stats[3],
		"defence":         stats[4],
		"speed":           motion[0],
		"range":           motion[1],
	})
}

func doFleet(role string, args []string) {
	vals, err := parseUints(args, 8)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	wings := make([]map[string]uint64, 0, 4)
	for i := 1; i+2 < len(vals); i += 3 {
		wings = append(wings, map[string]uint64{"ship_id": vals[i], "formation": vals[i+1], "wing_size": vals[i+2]})
	}
	doPost("/api/fleets/"+role, map[string]interface{}{"commander": vals[0], "composition": wings})
}

// doWatch streams this account's events until the connection drops.
func doWatch() {
	u, err := url.Parse(ServerURL)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/events"
	u.RawQuery = url.Values{"account": {CurrentUser}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer conn.Close()
	fmt.Println("Watching events (Ctrl+C to stop)...")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			fmt.Println("Stream closed:", err)
			return
		}
		fmt.Println(string(msg))
	}
}
