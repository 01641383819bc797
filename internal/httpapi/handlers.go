package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketpulse/presence-backend/internal/hub"
	"github.com/marketpulse/presence-backend/internal/marketdata"
	"github.com/marketpulse/presence-backend/internal/presence"
	"github.com/marketpulse/presence-backend/internal/types"
)

// Roster returns who is currently viewing a document. This is the
// read-only view the admin UI badge polls without opening a socket.
func Roster(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct, ok := presence.ParseContentType(chi.URLParam(r, "contentType"))
		if !ok {
			http.Error(w, "unknown content type", http.StatusBadRequest)
			return
		}
		scope := presence.Scope{Type: ct, ID: chi.URLParam(r, "contentId")}

		reply := make(chan []presence.Session, 1)
		h.Inbox() <- hub.Roster{Scope: scope, Reply: reply}
		sessions := <-reply

		wires := make([]types.Presence, 0, len(sessions))
		for _, s := range sessions {
			wires = append(wires, s.ToWire())
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Presences []types.Presence `json:"presences"`
		}{Presences: wires})
	}
}

// CryptoMarkets proxies the CoinGecko markets listing with caching.
func CryptoMarkets(svc *marketdata.CryptoService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vs := r.URL.Query().Get("vs_currency")
		if vs == "" {
			vs = "usd"
		}
		data, err := svc.Markets(r.Context(), vs, r.URL.Query().Get("ids"))
		if err != nil {
			log.Warn("markets fetch failed", zap.Error(err))
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

// CryptoTicker proxies the Binance 24hr ticker for one symbol.
func CryptoTicker(svc *marketdata.CryptoService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "missing symbol", http.StatusBadRequest)
			return
		}
		data, err := svc.Ticker(r.Context(), symbol)
		if err != nil {
			log.Warn("ticker fetch failed", zap.Error(err))
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
