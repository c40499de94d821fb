package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"newomega/pkg/game"
	"newomega/pkg/types"
)

// setupLogging routes info and debug lines to stdout and server.log, errors
// to stderr and error.log. InfoLog and ErrorLog stay plain *log.Logger values
// backed by the zap cores.
func setupLogging(dir string, debug bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	fInfo, err := os.OpenFile(filepath.Join(dir, "server.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	fErr, err := os.OpenFile(filepath.Join(dir, "error.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	minLevel := zapcore.InfoLevel
	if debug {
		minLevel = zapcore.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	infoLevels := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= minLevel && l < zapcore.ErrorLevel })
	errLevels := zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel })

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stdout), zapcore.AddSync(fInfo)), infoLevels),
		zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), zapcore.AddSync(fErr)), errLevels),
	)
	return useLogger(zap.New(core, zap.AddCaller()))
}

func useLogger(l *zap.Logger) error {
	var err error
	zapLogger = l
	if InfoLog, err = zap.NewStdLogAt(l.Named("omega"), zap.InfoLevel); err != nil {
		return err
	}
	ErrorLog, err = zap.NewStdLogAt(l.Named("omega"), zap.ErrorLevel)
	return err
}

func getLimiter(ip string) *rate.Limiter {
	ipLock.Lock()
	defer ipLock.Unlock()
	limiter, exists := ipLimiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(Config.RateLimit), Config.RateBurst)
		ipLimiters[ip] = limiter
	}
	return limiter
}

// middlewareCORS adds headers to allow browser clients
func middlewareCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-User-ID, X-Admin-Token")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func middlewareSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, _ := net.SplitHostPort(r.RemoteAddr)
		if !getLimiter(ip).Allow() {
			http.Error(w, "Rate Limit", http.StatusTooManyRequests)
			return
		}

		if r.Method == "OPTIONS" || r.Method == "GET" {
			next.ServeHTTP(w, r)
			return
		}

		contentType := r.Header.Get("Content-Type")
		if strings.Contains(contentType, "application/json") || contentType == "" {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Bad Type: "+contentType, http.StatusUnsupportedMediaType)
	})
}

func middlewareRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		next.ServeHTTP(w, r)
		zapLogger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("account", r.Header.Get("X-User-ID")),
			zap.Duration("took", time.Since(start)),
		)
	})
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ErrorLog.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatusFor(err)
	if status == http.StatusInternalServerError {
		ErrorLog.Printf("internal: %v", err)
		http.Error(w, "Internal Error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, errPlayerNotFound),
		errors.Is(err, errCommanderNotFound),
		errors.Is(err, game.ErrShipNotFound),
		errors.Is(err, errLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, errOrganizerNotSet),
		errors.Is(err, errOffensiveFleetNotRegistered),
		errors.Is(err, errDefensiveFleetNotRegistered):
		return http.StatusConflict
	case errors.Is(err, errInvalidFleet), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// accountFrom reads the caller's account from X-User-ID.
func accountFrom(r *http.Request) (types.AccountID, error) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return "", errUnauthorized
	}
	return types.AccountID(id), nil
}
