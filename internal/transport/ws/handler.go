// Package ws implements the Event Channel: one WebSocket connection per
// room participant, carrying a tagged-union command/event protocol.
package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"classroom-stream/origin/internal/domain"
	"classroom-stream/origin/internal/room"
)

const (
	writeTimeout = 5 * time.Second
)

// inbound is the tagged-union shape a client sends: a command type plus a
// payload whose fields are interpreted according to Type.
type inbound struct {
	Type             string               `json:"type"`
	Name             string               `json:"name"`
	Role             string               `json:"role"`
	Body             string               `json:"body"`
	Question         string               `json:"question"`
	Options          []string             `json:"options"`
	AutoCloseSeconds int                  `json:"auto_close_seconds"`
	PollID           string               `json:"poll_id"`
	OptionID         string               `json:"option_id"`
	TargetID         string               `json:"target_id"`
	Typing           bool                 `json:"typing"`
	Policy           *domain.CodecPolicy  `json:"policy,omitempty"`
}

// Handler owns websocket transport for the Room Hub.
type Handler struct {
	rooms        *room.Registry
	idleTimeout  time.Duration
	upgrader     websocket.Upgrader
}

func NewHandler(rooms *room.Registry, idleTimeout time.Duration) *Handler {
	return &Handler{
		rooms:       rooms,
		idleTimeout: idleTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the websocket route on an Echo router.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws/:streamKey", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c echo.Context) error {
	key := domain.StreamKey(c.Param("streamKey"))
	remoteAddr := c.RealIP()
	slog.Debug("ws upgrade request", "stream_key", key, "remote", remoteAddr)

	hub, ok := h.rooms.Get(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no active room for this stream key")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("ws upgrade failed", "stream_key", key, "remote", remoteAddr, "err", err)
		return fmt.Errorf("upgrade websocket: %w", err)
	}
	h.serveConn(conn, hub, key, remoteAddr)
	return nil
}

func (h *Handler) serveConn(conn *websocket.Conn, hub *room.Hub, key domain.StreamKey, remoteAddr string) {
	defer conn.Close()

	conn.SetReadLimit(1 << 16)
	h.armIdleTimeout(conn)
	conn.SetPongHandler(func(string) error {
		h.armIdleTimeout(conn)
		return nil
	})

	var hello inbound
	if err := conn.ReadJSON(&hello); err != nil {
		slog.Debug("ws read hello failed", "stream_key", key, "remote", remoteAddr, "err", err)
		return
	}
	if hello.Type != "join" {
		slog.Debug("ws bad first message", "stream_key", key, "remote", remoteAddr, "type", hello.Type)
		writeDirectError(conn, "first message must be join")
		return
	}

	role := domain.RoleStudent
	if hello.Role == string(domain.RoleInstructor) {
		role = domain.RoleInstructor
	}

	session, snapshot, err := hub.Join(hello.Name, role)
	if err != nil {
		slog.Warn("ws join rejected", "stream_key", key, "remote", remoteAddr, "name", hello.Name, "err", err)
		writeDirectError(conn, err.Error())
		return
	}

	slog.Info("ws connected", "stream_key", key, "participant_id", session.ParticipantID, "name", hello.Name, "remote", remoteAddr)

	defer func() {
		hub.Leave(session.ParticipantID)
		slog.Info("ws disconnected", "stream_key", key, "participant_id", session.ParticipantID, "remote", remoteAddr)
	}()

	if err := conn.WriteJSON(snapshot); err != nil {
		slog.Debug("ws snapshot write failed", "stream_key", key, "participant_id", session.ParticipantID, "err", err)
		return
	}

	go h.writePump(conn, session)

	pingTicker := time.NewTicker(h.idleTimeout / 3)
	defer pingTicker.Stop()
	go func() {
		for range pingTicker.C {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws unexpected close", "stream_key", key, "participant_id", session.ParticipantID, "err", err)
			}
			return
		}
		h.armIdleTimeout(conn)
		h.handleInbound(hub, session.ParticipantID, in)
	}
}

func (h *Handler) armIdleTimeout(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
}

func (h *Handler) writePump(conn *websocket.Conn, session *room.Session) {
	for out := range session.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(out); err != nil {
			slog.Debug("ws write error", "participant_id", session.ParticipantID, "err", err)
			return
		}
	}
}

func (h *Handler) handleInbound(hub *room.Hub, participantID string, in inbound) {
	var err error
	switch in.Type {
	case "chat":
		err = hub.Chat(participantID, in.Body)
	case "create_poll":
		_, err = hub.CreatePoll(participantID, in.Question, in.Options, in.AutoCloseSeconds)
	case "vote":
		err = hub.Vote(participantID, in.PollID, in.OptionID)
	case "close_poll":
		err = hub.ClosePoll(participantID, in.PollID)
	case "raise_hand":
		err = hub.RaiseHand(participantID)
	case "lower_hand":
		err = hub.LowerHand(participantID, in.TargetID)
	case "typing":
		err = hub.Typing(participantID, in.Typing)
	case "set_codec_policy":
		if in.Policy == nil {
			err = fmt.Errorf("policy is required")
		} else {
			err = hub.SetCodecPolicy(participantID, *in.Policy)
		}
	default:
		slog.Warn("ws unknown message type", "participant_id", participantID, "type", in.Type)
		hub.SendTo(participantID, room.Event{Type: "error", Payload: "unsupported message type"})
		return
	}
	if err != nil {
		slog.Debug("ws command rejected", "participant_id", participantID, "type", in.Type, "err", err)
		hub.SendTo(participantID, room.Event{Type: "error", Payload: err.Error()})
	}
}

func writeDirectError(conn *websocket.Conn, msg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteJSON(room.Event{Type: "error", Payload: msg})
}
