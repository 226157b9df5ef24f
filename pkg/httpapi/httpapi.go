package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

// Config holds the HTTP bind settings.
type Config struct {
	Addr         string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"120s"`
}

// TurnDispatcher is what the chat endpoint needs from the core.
type TurnDispatcher interface {
	Dispatch(ctx context.Context, req contractx.TurnRequest) (contractx.TurnReply, error)
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// NewHandler builds the HTTP surface: a health probe and the chat endpoint.
func NewHandler(dispatcher TurnDispatcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /chat", handleChat(dispatcher))
	return mux
}

// NewServer wraps the handler in a configured http.Server.
func NewServer(cfg Config, dispatcher TurnDispatcher) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewHandler(dispatcher),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func handleChat(dispatcher TurnDispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		reply, err := dispatcher.Dispatch(r.Context(), contractx.TurnRequest{
			UserID:     req.UserID,
			GuildID:    req.GuildID,
			ChannelID:  req.ChannelID,
			Content:    req.Content,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			if errors.Is(err, contractx.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Str("user_id", req.UserID).Msg("chat turn failed")
			writeError(w, http.StatusInternalServerError, "turn processing failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			log.Error().Err(err).Msg("encode chat reply")
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
