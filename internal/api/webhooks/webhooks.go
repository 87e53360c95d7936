// Package webhooks serves the inbound push endpoints: chat updates and provider status pushes.
package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/TrackBot/internal/integrations/telegram"
	"github.com/BearBump/TrackBot/internal/models"
	"github.com/BearBump/TrackBot/internal/services/tracksync"
	"github.com/go-chi/chi/v5"
)

const (
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes         = 1 << 20
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u telegram.Update)
}

type WebhookParser interface {
	ParseWebhook(payload []byte) (models.ShipmentStatus, bool)
}

type StatusSink interface {
	OnWebhookUpdate(ctx context.Context, st models.ShipmentStatus) (tracksync.Outcome, error)
}

type Options struct {
	TelegramSecret string
	// ProviderHeader and ProviderSecret guard /provider-webhook; empty secret disables the check.
	ProviderHeader string
	ProviderSecret string
	// UpdateTimeout bounds the asynchronous handling of one chat update.
	UpdateTimeout time.Duration
}

type Handler struct {
	bot    UpdateHandler
	parser WebhookParser
	sink   StatusSink
	opts   Options

	// base is the parent of asynchronous update handling; cancelled on shutdown.
	base context.Context
}

func New(base context.Context, bot UpdateHandler, parser WebhookParser, sink StatusSink, opts Options) *Handler {
	if opts.ProviderHeader == "" {
		opts.ProviderHeader = "X-Webhook-Secret"
	}
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 30 * time.Second
	}
	return &Handler{bot: bot, parser: parser, sink: sink, opts: opts, base: base}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/telegram-webhook", h.telegramWebhook)
	r.Post("/provider-webhook", h.providerWebhook)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func secretOK(got, want string) bool {
	if want == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (h *Handler) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	if !secretOK(r.Header.Get(telegramSecretHeader), h.opts.TelegramSecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var u telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&u); err != nil {
		// malformed updates are acknowledged so Telegram does not redeliver them
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(h.base, h.opts.UpdateTimeout)
		defer cancel()
		h.bot.HandleUpdate(ctx, u)
	}()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) providerWebhook(w http.ResponseWriter, r *http.Request) {
	if !secretOK(r.Header.Get(h.opts.ProviderHeader), h.opts.ProviderSecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}
	st, ok := h.parser.ParseWebhook(body)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no track"})
		return
	}

	out, err := h.sink.OnWebhookUpdate(r.Context(), st)
	if err != nil {
		slog.Error("provider webhook", "tracking_id", st.TrackingID, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "outcome": out})
}
