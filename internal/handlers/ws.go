// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pitchside/pitchside/internal/broadcast"
	"github.com/pitchside/pitchside/internal/engine"
	"github.com/pitchside/pitchside/internal/events"
	"github.com/pitchside/pitchside/internal/middleware"
	"github.com/pitchside/pitchside/internal/models"
	"github.com/pitchside/pitchside/internal/room"
)

// Subprotocol is the WebSocket subprotocol clients must speak.
const Subprotocol = "pitchside"

// outboxBuffer is the per-connection outbound queue depth; a consumer that
// falls further behind starts losing events.
const outboxBuffer = 32

// WSHandler upgrades the connection and runs the session: one read pump
// dispatching inbound actions and one write pump draining the gateway
// subscription.
func WSHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			s.log.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the pitchside subprotocol")
			return
		}

		player, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			s.log.Warnf("player authentication failed: %v", err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		sub := broadcast.NewSubscriber(player.ID, outboxBuffer, s.log)
		s.gateway.Register(sub)
		s.gateway.Subscribe(broadcast.TopicRoomList, sub)
		s.registerSession(player)

		middleware.LogWebSocketConnect(s.log, remoteAddr, r.URL.Path)

		// The first frame a client sees is the current room list, so lobby
		// browsers render without waiting for the next snapshot tick.
		sub.Write(s.rooms.RoomListPayload())

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go writePump(ctx, c, sub, s.log)
		readErr := s.readPump(ctx, c, player, sub)

		middleware.LogWebSocketDisconnect(s.log, remoteAddr, r.URL.Path, readErr)
		s.cleanupDisconnect(player.ID)
	}
}

// readPump processes inbound frames until the connection dies. It returns
// the terminal read error, nil for a normal closure.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, player models.Player, sub *broadcast.Subscriber) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.log.Warnf("ws: non-text message type %d from %s, ignoring", typ, player.ID)
			continue
		}

		var packet events.Payload
		if err := json.Unmarshal(msg, &packet); err != nil {
			sub.WriteError("validation", "invalid JSON format")
			continue
		}
		s.dispatch(player, sub, packet)
	}
}

// dispatch routes one inbound action to the owning service. Rejections go
// back to the sender only, as a typed error payload.
func (s *Server) dispatch(player models.Player, sub *broadcast.Subscriber, packet events.Payload) {
	action, _ := packet["type"].(string)

	var err error
	switch action {
	case "createRoom":
		var req struct {
			Name       string              `json:"name"`
			Password   string              `json:"password"`
			MaxPlayers int                 `json:"maxPlayers"`
			RoomType   string              `json:"roomType"`
			Settings   *room.SettingsPatch `json:"settings"`
		}
		if err = decodePacket(packet, &req); err == nil {
			_, err = s.rooms.CreateRoom(player, room.CreateConfig{
				Name:       req.Name,
				Password:   req.Password,
				MaxPlayers: req.MaxPlayers,
				Type:       req.RoomType,
				Settings:   req.Settings,
			})
		}

	case "joinRoom":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			password, _ := packet["password"].(string)
			_, err = s.rooms.JoinRoom(roomID, player, password)
		}

	case "leaveRoom":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			err = s.rooms.LeaveRoom(roomID, player.ID)
		}

	case "changeTeam":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			teamStr, _ := packet["team"].(string)
			var team room.Team
			if team, err = room.ParseTeam(teamStr); err == nil {
				err = s.rooms.ChangeTeam(roomID, player.ID, team)
			}
		}

	case "startGame":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			err = s.rooms.StartGame(roomID, player.ID)
		}

	case "stopGame":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			err = s.rooms.StopGame(roomID, player.ID)
		}

	case "updateSettings":
		var roomID uuid.UUID
		if roomID, err = packetID(packet, "roomId"); err == nil {
			var req struct {
				Settings room.SettingsPatch `json:"settings"`
			}
			if err = decodePacket(packet, &req); err == nil {
				err = s.rooms.UpdateSettings(roomID, player.ID, req.Settings)
			}
		}

	case "enqueueRanked":
		mode, _ := packet["mode"].(string)
		err = s.matches.Enqueue(player, mode)

	case "cancelQueue":
		err = s.matches.Cancel(player.ID)

	case "acceptMatch":
		var proposalID uuid.UUID
		if proposalID, err = packetID(packet, "proposalId"); err == nil {
			err = s.matches.Accept(player.ID, proposalID)
		}

	case "declineMatch":
		var proposalID uuid.UUID
		if proposalID, err = packetID(packet, "proposalId"); err == nil {
			err = s.matches.Decline(player.ID, proposalID)
		}

	case "invitePartyMember":
		nickname, _ := packet["nickname"].(string)
		invitee, online := s.playerByNickname(nickname)
		if !online {
			err = engine.NotFoundf("no connected player named %q", nickname)
		} else {
			_, err = s.matches.InviteToParty(player, invitee)
		}

	case "leaveParty":
		err = s.matches.LeaveParty(player.ID)

	default:
		err = engine.Validationf("unknown action type %q", action)
	}

	if err != nil {
		sub.Write(events.Error(errorCode(err), err.Error()))
	}
}

// errorCode renders the engine error class for the wire.
func errorCode(err error) string {
	if class, ok := engine.ClassOf(err); ok {
		return class.String()
	}
	return "internal"
}

// decodePacket round-trips the raw packet into a typed request struct.
func decodePacket(packet events.Payload, dst interface{}) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return engine.Validationf("unreadable payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return engine.Validationf("malformed payload: %v", err)
	}
	return nil
}

// packetID extracts and parses a uuid field from the packet.
func packetID(packet events.Payload, key string) (uuid.UUID, error) {
	raw, _ := packet[key].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, engine.Validationf("invalid %s", key)
	}
	return id, nil
}

// writePump drains the subscriber's outbox onto the socket and keeps the
// connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, sub *broadcast.Subscriber, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("ws: failed to marshal outgoing msg for %s: %v", sub.ID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("ws: write failed for %s: %v", sub.ID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("ws: ping failed for %s, assuming disconnect: %v", sub.ID, err)
				return
			}
		}
	}
}
