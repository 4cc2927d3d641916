package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/slot-assignment-api/pkg/app"
	"github.com/arnavshah/slot-assignment-api/pkg/config"
	"github.com/arnavshah/slot-assignment-api/pkg/logging"
)

var r http.Handler

func init() {
	// Load .env if it exists (for local testing with vercel dev)
	config.LoadDotEnv()
	logger := logging.New(os.Stdout, os.Getenv("LOG_LEVEL"))

	cfg, err := config.FromEnv()
	if err != nil {
		r = unavailable(logger, err)
		return
	}

	gin.SetMode(gin.ReleaseMode)
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		r = unavailable(logger, err)
		return
	}
	r = a.Router(cfg, "Slot Assignment API (Vercel)")
}

func unavailable(logger *slog.Logger, err error) http.Handler {
	logger.Error("startup failed", "error", err)
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	})
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, req *http.Request) {
	r.ServeHTTP(w, req)
}
