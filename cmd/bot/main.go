// Command bot is a minimal scripted player client: it joins over websocket,
// wanders, and accepts any conversation request aimed at it. Useful for
// smoke-testing a running server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"tiletown.ai/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "player name")
		avatar = flag.String("avatar", "", "avatar id to claim (empty: fresh avatar)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		AvatarID:        *avatar,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{
		conn:   conn,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			b.entityID = w.EntityID
			b.width = w.WorldParams.Width
			b.height = w.WorldParams.Height
			logger.Printf("WELCOME entity_id=%s world=%s tick_rate=%d", w.EntityID, w.WorldParams.WorldID, w.WorldParams.TickRateHz)

		case protocol.TypeSnapshot:
			var snap protocol.SnapshotMsg
			if err := json.Unmarshal(msg, &snap); err != nil {
				continue
			}
			for _, e := range snap.Entities {
				if e.ID == b.entityID {
					b.x, b.y = e.X, e.Y
				}
			}
			logger.Printf("SNAPSHOT tick=%d entities=%d", snap.Tick, len(snap.Entities))

		case protocol.TypeEvents:
			var evs protocol.EventsMsg
			if err := json.Unmarshal(msg, &evs); err != nil {
				continue
			}
			b.handleEvents(&evs)

		case protocol.TypeActResult:
			var res protocol.ActResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			if !res.OK {
				logger.Printf("ACT %s rejected: %s %s", res.ID, res.Code, res.Message)
			}
		}
	}
}

type bot struct {
	conn   *websocket.Conn
	logger *log.Logger
	rng    *rand.Rand

	entityID      string
	width, height int
	x, y          int
}

func (b *bot) handleEvents(evs *protocol.EventsMsg) {
	for _, ev := range evs.Events {
		// Track own position from the event stream.
		if ev.Type == protocol.EventEntityMoved && ev.EntityID == b.entityID {
			b.x, b.y = ev.X, ev.Y
		}
		// Accept anything that asks.
		if ev.Type == protocol.EventConversationRequested && ev.TargetID == b.entityID {
			b.send(protocol.ActMsg{
				Type:            protocol.TypeAct,
				ProtocolVersion: protocol.Version,
				ID:              fmt.Sprintf("accept_%d", evs.Tick),
				Conversation: &protocol.ConversationReq{
					Verb:      protocol.ConvVerbAccept,
					RequestID: ev.RequestID,
				},
			})
		}
	}

	// Wander every ~20 seconds at the default 5 Hz.
	if evs.Tick%100 == 10 && b.entityID != "" {
		tx := clamp(b.x+b.rng.Intn(15)-7, 0, b.width-1)
		ty := clamp(b.y+b.rng.Intn(15)-7, 0, b.height-1)
		b.send(protocol.ActMsg{
			Type:            protocol.TypeAct,
			ProtocolVersion: protocol.Version,
			ID:              fmt.Sprintf("move_%d", evs.Tick),
			Tick:            evs.Tick,
			Move:            &protocol.MoveReq{X: float64(tx), Y: float64(ty)},
		})
	}
}

func (b *bot) send(act protocol.ActMsg) {
	if err := b.conn.WriteJSON(act); err != nil {
		b.logger.Printf("send ACT: %v", err)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
