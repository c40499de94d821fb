package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
)

func initConfig() error {
	cfg, err := env.ParseAs[Settings]()
	if err != nil {
		return err
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 10 * time.Minute
	}
	Config = cfg
	return nil
}

func routes() http.Handler {
	mux := http.NewServeMux()

	// Organizer (admin token)
	mux.HandleFunc("POST /api/organizer", handleSetOrganizer)
	mux.HandleFunc("GET /api/organizer", handleGetOrganizer)

	// Player actions
	mux.HandleFunc("POST /api/loot-crate", handleLootCrate)
	mux.HandleFunc("POST /api/ships", handleAddShip)
	mux.HandleFunc("POST /api/fleets/defense", handleRegisterDefense)
	mux.HandleFunc("POST /api/fleets/offense", handleRegisterOffense)
	mux.HandleFunc("POST /api/engage", handleEngage)

	// Queries
	mux.HandleFunc("GET /api/engagements", handleHistory)
	mux.HandleFunc("GET /api/logs/{id}", handleLog)
	mux.HandleFunc("GET /api/player", handlePlayer)
	mux.HandleFunc("GET /api/leaderboard", handleLeaderboard)
	mux.HandleFunc("GET /api/ledger/audit", handleLedgerAudit)
	mux.HandleFunc("GET /api/status", handleStatus)

	mux.HandleFunc("GET /ws/events", handleEvents)

	// Wrap Middleware
	handler := middlewareSecurity(mux)
	handler = middlewareCORS(handler)
	return middlewareRequestID(handler)
}

func main() {
	if err := initConfig(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := setupLogging(Config.LogDir, Config.Debug); err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer zapLogger.Sync()

	if err := initDB(); err != nil {
		ErrorLog.Fatalf("database: %v", err)
	}
	defer db.Close()

	InfoLog.Println("NEW OMEGA BOOT SEQUENCE")
	InfoLog.Printf("Driver: %s | DB: %s | Ship cost: %d", Config.DBDriver, Config.DBPath, Config.ShipCost)

	hub = NewHub()
	stop := make(chan struct{})
	go runSnapshotLoop(stop)

	server := &http.Server{
		Addr:         Config.Addr,
		Handler:      routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		InfoLog.Printf("Node %s Listening on %s", ServerUUID, Config.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ErrorLog.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	InfoLog.Println("Shutting down")
	close(stop)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		ErrorLog.Printf("shutdown: %v", err)
	}
}
