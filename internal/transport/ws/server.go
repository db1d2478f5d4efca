package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"tiletown.ai/internal/protocol"
	"tiletown.ai/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
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
			return
		}
		defer conn.Close()

		entityID, out := s.handshake(conn)
		if entityID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
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
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}
			respCh := make(chan protocol.ActResultMsg, 1)
			s.world.Inbox() <- world.ActionEnvelope{EntityID: entityID, Act: act, Resp: respCh}
			// Results arrive at the next tick boundary; forward off the
			// reader so a slow tick never stalls incoming frames.
			go func() {
				select {
				case res := <-respCh:
					b, err := json.Marshal(res)
					if err != nil {
						return
					}
					select {
					case out <- b:
					case <-ctx.Done():
					}
				case <-ctx.Done():
				}
			}()
		}

		// Disconnect hands the avatar back to robot control; it does not
		// remove the entity.
		s.world.Leave() <- world.LeaveRequest{EntityID: entityID}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (entityID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "visitor"
	}

	out = make(chan []byte, 32)

	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		AvatarID: hello.AvatarID,
		Name:     hello.PlayerName,
		Out:      out,
		Resp:     respCh,
	}
	resp := <-respCh
	if resp.Err != nil {
		if s.log != nil {
			s.log.Printf("join rejected for %q: %v", hello.PlayerName, resp.Err)
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "join rejected"), time.Now().Add(time.Second))
		return "", nil
	}

	// WELCOME then the full SNAPSHOT, before any event batch. The join is
	// already registered, so a failed write must unwind it or the world keeps
	// a dead client and a permanently player-held avatar.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- world.LeaveRequest{EntityID: resp.Welcome.EntityID}
		return "", nil
	}
	if err := writeJSON(conn, resp.Snapshot); err != nil {
		s.world.Leave() <- world.LeaveRequest{EntityID: resp.Welcome.EntityID}
		return "", nil
	}

	return resp.Welcome.EntityID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
