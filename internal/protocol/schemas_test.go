package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tiletown.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	helloSchema := compile("hello.schema.json")
	welcomeSchema := compile("welcome.schema.json")
	snapshotSchema := compile("snapshot.schema.json")
	actSchema := compile("act.schema.json")
	actResultSchema := compile("act_result.schema.json")
	eventsSchema := compile("events.schema.json")

	var hello any
	_ = json.Unmarshal([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_name":"Lin",
	  "avatar_id":"avatar-7"
	}`), &hello)
	validate(helloSchema, hello)

	var welcome any
	_ = json.Unmarshal([]byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "entity_id":"avatar-7",
	  "world_params":{
	    "world_id":"town_1",
	    "width":75,
	    "height":56,
	    "tick_rate_hz":5,
	    "conversation_radius":8,
	    "seed":1337
	  }
	}`), &welcome)
	validate(welcomeSchema, welcome)

	var snap any
	_ = json.Unmarshal([]byte(`{
	  "type":"SNAPSHOT",
	  "protocol_version":"1.0",
	  "tick":42,
	  "entities":[
	    {"id":"avatar-7","kind":"PLAYER","name":"Lin","x":10,"y":12,"facing_x":0,"facing_y":1,"conversation_state":"IDLE"},
	    {"id":"wall-0","kind":"WALL","x":5,"y":5,"facing_x":0,"facing_y":1}
	  ]
	}`), &snap)
	validate(snapshotSchema, snap)

	var act any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "id":"a1",
	  "tick":42,
	  "move":{"x":20,"y":13}
	}`), &act)
	validate(actSchema, act)

	var convAct any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT",
	  "protocol_version":"1.0",
	  "conversation":{"verb":"REQUEST","target_id":"robot-1","reason":"hi"}
	}`), &convAct)
	validate(actSchema, convAct)

	var res any
	_ = json.Unmarshal([]byte(`{
	  "type":"ACT_RESULT",
	  "protocol_version":"1.0",
	  "id":"a1",
	  "ok":false,
	  "code":"E_TARGET_BUSY",
	  "message":"target is IN_CONVERSATION"
	}`), &res)
	validate(actResultSchema, res)

	var events any
	_ = json.Unmarshal([]byte(`{
	  "type":"EVENTS",
	  "protocol_version":"1.0",
	  "tick":43,
	  "events":[
	    {"type":"ENTITY_MOVED","t":43,"entity_id":"avatar-7","x":11,"y":12},
	    {"type":"CONVERSATION_REQUESTED","t":43,"request_id":"r1","initiator_id":"robot-1","target_id":"avatar-7","x":0,"y":0,"expires_at_ms":1700000000000}
	  ]
	}`), &events)
	validate(eventsSchema, events)
}

// A bare ACT with no action payload must not validate: the server rejects it
// with E_PROTO_BAD_REQUEST and the schema should agree.
func TestSchemas_ActRequiresOneAction(t *testing.T) {
	p := filepath.Join("..", "..", "schemas", "act.schema.json")
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var empty any
	_ = json.Unmarshal([]byte(`{"type":"ACT","protocol_version":"1.0"}`), &empty)
	if err := s.Validate(empty); err == nil {
		t.Fatalf("empty ACT validated; expected failure")
	}
}

func TestWireSamplesMatchSchemas(t *testing.T) {
	// Marshal real structs and re-validate, so the Go types and the schema
	// files cannot drift apart silently.
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", name))
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}
	roundTrip := func(v any) any {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		EntityID:        "avatar-1",
		WorldParams: protocol.WorldParams{
			WorldID: "town_1", Width: 75, Height: 56,
			TickRateHz: 5, ConversationRadius: 8, Seed: 1337,
		},
	}
	if err := compile("welcome.schema.json").Validate(roundTrip(welcome)); err != nil {
		t.Fatalf("welcome: %v", err)
	}

	events := protocol.EventsMsg{
		Type:            protocol.TypeEvents,
		ProtocolVersion: protocol.Version,
		Tick:            7,
		Events: []protocol.Event{
			{Type: protocol.EventEntityTurned, Tick: 7, EntityID: "robot-1", X: 3, Y: 4, FacingX: 1},
			{Type: protocol.EventConversationRejected, Tick: 7, RequestID: "r1", InitiatorID: "a", TargetID: "b", CooldownUntilMs: 1700000000000},
		},
	}
	if err := compile("events.schema.json").Validate(roundTrip(events)); err != nil {
		t.Fatalf("events: %v", err)
	}
}
