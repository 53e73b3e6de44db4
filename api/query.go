package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vishpuri/FRED/agent"
)

type queryRequest struct {
	Query string `json:"query"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "Query is required", nil)
		return
	}
	s.log.Info().Str("query", req.Query).Msg("processing query")

	res, err := s.deps.Agent.ProcessQuery(r.Context(), req.Query, agent.ProcessCallbacks{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process query", err)
		return
	}
	writeJSON(w, http.StatusOK, agent.Present(res))
}

// streamEvent is one message sent on the query stream.
type streamEvent struct {
	Type    string          `json:"type"`
	State   agent.State     `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Result  *agent.Response `json:"result,omitempty"`
}

func (s *server) upgrader() *websocket.Upgrader {
	allowed := s.deps.AllowedOrigins
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowed) == 0 {
				return true
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleQueryStream answers each text message received on the websocket as
// a query. Progress is streamed as state and warning events, followed by a
// result or error event.
func (s *server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	send := func(ev streamEvent) {
		if err := conn.WriteJSON(ev); err != nil {
			s.log.Debug().Err(err).Msg("websocket write error")
		}
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
		query := strings.TrimSpace(string(msg))
		var req queryRequest
		if json.Unmarshal(msg, &req) == nil {
			query = strings.TrimSpace(req.Query)
		}
		if query == "" {
			send(streamEvent{Type: "error", Message: "Query is required"})
			continue
		}

		res, err := s.deps.Agent.ProcessQuery(r.Context(), query, agent.ProcessCallbacks{
			OnStateChange: func(st agent.State, detail string) {
				send(streamEvent{Type: "state", State: st, Message: detail})
			},
			OnWarning: func(warning string) {
				send(streamEvent{Type: "warning", Message: warning})
			},
		})
		if err != nil {
			send(streamEvent{Type: "error", Message: err.Error()})
			continue
		}
		send(streamEvent{Type: "result", Result: agent.Present(res)})
	}
}
