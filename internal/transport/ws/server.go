package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lightcycle.ai/internal/protocol"
	"lightcycle.ai/internal/sim/world"
)

// Hub is the part of the world the transport talks to.
type Hub interface {
	Join() chan<- world.JoinRequest
	Inbox() chan<- world.ActionEnvelope
	Leave() chan<- uuid.UUID
	// Done is closed once the world loop has stopped consuming.
	Done() <-chan struct{}
}

// deliver sends v unless the world has stopped.
func deliver[T any](done <-chan struct{}, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-done:
		return false
	}
}

type Server struct {
	world Hub
	log   zerolog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w Hub, logger zerolog.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			s.log.Debug().Err(err).Msg("upgrade failed")
			return
		}
		defer conn.Close()

		ownerID, out := s.handshake(conn)
		if ownerID == uuid.Nil {
			return
		}
		log := s.log.With().Str("owner", ownerID.String()).Logger()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-s.world.Done():
					closeWith(conn, "server shutting down")
					_ = conn.Close()
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						log.Debug().Err(err).Msg("write failed")
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			act, code, reason := decodeAct(msg)
			if code != "" {
				trySendJSON(out, protocol.NewError(code, reason))
				continue
			}
			if !deliver(s.world.Done(), s.world.Inbox(), world.ActionEnvelope{OwnerID: ownerID, Act: act}) {
				cancel()
				break
			}
		}

		// Cleanup.
		deliver(s.world.Done(), s.world.Leave(), ownerID)
		log.Info().Msg("connection closed")
	}
}

// decodeAct parses and validates an ACT message; a non-empty code reports why it
// was rejected.
func decodeAct(msg []byte) (protocol.ActMsg, string, string) {
	var act protocol.ActMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return act, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeAct {
		return act, protocol.ErrProtoBadRequest, "unexpected message type " + base.Type
	}
	if base.ProtocolVersion != protocol.Version {
		return act, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	if err := protocol.Validate(protocol.TypeAct, msg); err != nil {
		return act, protocol.ErrProtoBadRequest, err.Error()
	}
	if err := json.Unmarshal(msg, &act); err != nil {
		return act, protocol.ErrProtoBadRequest, err.Error()
	}
	return act, "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (ownerID uuid.UUID, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return uuid.Nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return uuid.Nil, nil
	}
	if base.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return uuid.Nil, nil
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, "invalid HELLO")
		return uuid.Nil, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, "invalid HELLO")
		return uuid.Nil, nil
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 32
	}
	if maxQ > 256 {
		maxQ = 256
	}
	out = make(chan []byte, maxQ)

	token := ""
	if hello.Auth != nil {
		token = strings.TrimSpace(hello.Auth.Token)
	}
	respCh := make(chan world.JoinResponse, 1)
	done := s.world.Done()
	if !deliver(done, s.world.Join(), world.JoinRequest{
		Name:  hello.Name,
		World: hello.World,
		Token: token,
		Out:   out,
		Resp:  respCh,
	}) {
		closeWith(conn, "server shutting down")
		return uuid.Nil, nil
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-done:
		closeWith(conn, "server shutting down")
		return uuid.Nil, nil
	}
	if resp.Code != "" {
		_ = writeJSON(conn, protocol.NewError(resp.Code, resp.Message))
		closeWith(conn, resp.Message)
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(resp.Welcome.OwnerID)
	if err != nil {
		s.log.Error().Err(err).Msg("world returned a bad owner id")
		return uuid.Nil, nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		deliver(done, s.world.Leave(), id)
		return uuid.Nil, nil
	}
	s.log.Info().Str("owner", id.String()).Str("name", hello.Name).Msg("rider connected")
	return id, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func trySendJSON(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
