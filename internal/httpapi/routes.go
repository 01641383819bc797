package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/hub"
	"github.com/marketpulse/presence-backend/internal/marketdata"
	"github.com/marketpulse/presence-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, crypto *marketdata.CryptoService, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/ws/presence", ws.Handler(h, log))
	r.Get("/api/presence/{contentType}/{contentId}", Roster(h))
	r.Get("/api/crypto/markets", CryptoMarkets(crypto, log))
	r.Get("/api/crypto/ticker", CryptoTicker(crypto, log))
	return r
}
