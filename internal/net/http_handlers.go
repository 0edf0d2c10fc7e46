package net

import (
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"

	"skirmish/server/internal/action"
	"skirmish/server/internal/auth"
	"skirmish/server/internal/net/ws"
	"skirmish/server/internal/observability"
	"skirmish/server/internal/session"
	"skirmish/server/internal/telemetry"
	"skirmish/server/logging"
)

type HTTPHandlerConfig struct {
	Session       *session.Session
	Relay         *ws.Relay
	Tokens        *auth.Tokens
	Metrics       *logging.Metrics
	TickRate      int
	Logger        telemetry.Logger
	Observability observability.Config
}

type joinRequest struct {
	User string `json:"user"`
	Name string `json:"name"`
}

type joinResponse struct {
	Token   string `json:"token,omitempty"`
	User    string `json:"user"`
	Name    string `json:"name,omitempty"`
	Session string `json:"session"`
	Scope   string `json:"scope"`
	Socket  string `json:"socket"`
}

func NewHTTPHandler(cfg HTTPHandlerConfig) (nethttp.Handler, error) {
	if cfg.Session == nil || cfg.Relay == nil {
		return nil, errors.New("net: http handler requires a session and a relay")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	sess := cfg.Session

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var metrics map[string]uint64
		if cfg.Metrics != nil {
			metrics = cfg.Metrics.Snapshot()
		}
		writeJSON(w, logger, struct {
			Status     string              `json:"status"`
			ServerTime int64               `json:"serverTime"`
			TickRate   int                 `json:"tickRate"`
			Peers      int                 `json:"peers"`
			Session    session.Diagnostics `json:"session"`
			Telemetry  map[string]uint64   `json:"telemetry,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   cfg.TickRate,
			Peers:      cfg.Relay.Peers(),
			Session:    sess.Diagnostics(),
			Telemetry:  metrics,
		})
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		var req joinRequest
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
		}
		if req.User == "" {
			req.User = uuid.NewString()
		}

		resp := joinResponse{
			User:    req.User,
			Name:    req.Name,
			Session: sess.ID(),
			Scope:   string(sess.Scope()),
			Socket:  "/ws",
		}
		if cfg.Tokens != nil {
			token, err := cfg.Tokens.Issue(action.UserID(req.User), req.Name, sess.Scope())
			if err != nil {
				logger.Printf("failed to issue join token for %s: %v", req.User, err)
				httpError(w, "failed to issue token", nethttp.StatusInternalServerError)
				return
			}
			resp.Token = token
		}
		writeJSON(w, logger, resp)
	})

	mux.HandleFunc("/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, logger, sess.Bus().Catalog().Schema())
	})

	mux.Handle("/ws", cfg.Relay)
	observability.Mount(mux, cfg.Observability)

	return mux, nil
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
