package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/arnavshah/coordination-api/internal/app"
	"github.com/arnavshah/coordination-api/internal/config"
	"github.com/arnavshah/coordination-api/internal/logging"
	"github.com/gin-gonic/gin"
)

var h http.Handler

func init() {
	// Serverless instances are short lived: no websocket relay or expiry
	// ticker here, the long running server owns those.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	a, err := app.New(context.Background(), cfg, logging.New(true))
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	h = a.HTTPHandler()
}

// Handler is the entry point for Vercel Go Runtime
func Handler(w http.ResponseWriter, r *http.Request) {
	h.ServeHTTP(w, r)
}
