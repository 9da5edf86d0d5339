package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/intervue/internal/audio"
	"github.com/stemsi/intervue/internal/model"
	"github.com/stemsi/intervue/internal/service"
	ws "github.com/stemsi/intervue/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the UI stream.
type WSHandler struct {
	stream   *ws.Stream
	sessions *service.SessionService
	player   *audio.RemotePlayer
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. player may be nil when audio is
// disabled.
func NewWSHandler(stream *ws.Stream, sessions *service.SessionService, player *audio.RemotePlayer, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		stream:   stream,
		sessions: sessions,
		player:   player,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream
// The newest connection replaces any previous one.
func (h *WSHandler) SessionStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.stream.Attach(conn)
	defer h.stream.Detach(conn)

	h.log.Info().Str("remote", c.ClientIP()).Msg("UI connected")
	h.stream.Publish(ws.StateResponse{Event: ws.EventState, State: h.sessions.Snapshot()})

	ctx := c.Request.Context()
	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				h.log.Debug().Msg("UI disconnected")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.reply(ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"})
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, raw)
		case ws.ActionProctoring:
			h.handleProctoring(ctx, raw)
		case ws.ActionAudioEvent:
			h.handleAudioEvent(raw)
		case ws.ActionPing:
			h.reply(ws.PongResponse{Event: ws.EventPong})
		default:
			h.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			h.reply(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(env.Action)})
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, raw []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.QuestionID == "" || strings.TrimSpace(req.Answer) == "" {
		h.reply(ws.ErrorResponse{Event: ws.EventError, Error: "question_id and answer are required"})
		return
	}

	err := h.sessions.SubmitAnswer(ctx, model.SubmitAnswerRequest{QuestionID: req.QuestionID, Answer: req.Answer})
	if err != nil {
		h.replyErr(err)
	}
}

func (h *WSHandler) handleProctoring(ctx context.Context, raw []byte) {
	var req ws.ProctoringRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.reply(ws.ErrorResponse{Event: ws.EventError, Error: "malformed proctoring signal"})
		return
	}
	if _, err := h.sessions.RecordProctoring(ctx, req.Kind); err != nil {
		h.replyErr(err)
	}
}

func (h *WSHandler) handleAudioEvent(raw []byte) {
	if h.player == nil {
		return
	}
	var req ws.AudioEventRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.AudioID == "" {
		h.log.Debug().Msg("Dropping malformed audio event")
		return
	}
	h.player.Report(audio.SignalFromEvent(req))
}

func (h *WSHandler) reply(v any) {
	if err := h.stream.Send(v); err != nil {
		h.log.Debug().Err(err).Msg("Reply not delivered")
	}
}

func (h *WSHandler) replyErr(err error) {
	h.reply(ws.ErrorResponse{Event: ws.EventError, Error: err.Error(), Code: string(codeFor(err))})
}
