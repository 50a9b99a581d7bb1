package opencode

import (
	"errors"
	"testing"

	"github.com/deckhand-ai/deckhand/internal/domain/conversation"
	"github.com/deckhand-ai/deckhand/internal/domain/session"
	"github.com/deckhand-ai/deckhand/internal/port/agentstream"
)

func TestDecodeEnvelopeFrames(t *testing.T) {
	dec := Decoder{}

	tests := []struct {
		name  string
		frame string
		want  agentstream.Event
	}{
		{
			name:  "assistant message start",
			frame: `{"type":"message.updated","properties":{"info":{"id":"msg_1","role":"assistant","sessionID":"ses_1","time":{"created":1700000000}}}}`,
			want:  agentstream.MessageStart{SessionID: "ses_1", MessageID: "msg_1"},
		},
		{
			name:  "message completed",
			frame: `{"type":"message.updated","properties":{"info":{"id":"msg_1","role":"assistant","sessionID":"ses_1","time":{"created":1700000000,"completed":1700000009}}}}`,
			want:  agentstream.MessageComplete{SessionID: "ses_1", MessageID: "msg_1"},
		},
		{
			name:  "part delta",
			frame: `{"type":"message.part.delta","properties":{"sessionID":"ses_1","messageID":"msg_1","partID":"prt_1","field":"text","delta":"Hel"}}`,
			want: agentstream.PartDelta{
				SessionID: "ses_1", MessageID: "msg_1", PartID: "prt_1", Field: "text", Text: "Hel",
			},
		},
		{
			name:  "part delta defaults field to text",
			frame: `{"type":"message.part.delta","properties":{"sessionID":"ses_1","partID":"prt_1","delta":"lo"}}`,
			want: agentstream.PartDelta{
				SessionID: "ses_1", PartID: "prt_1", Field: "text", Text: "lo",
			},
		},
		{
			name:  "session idle",
			frame: `{"type":"session.idle","properties":{"sessionID":"ses_1"}}`,
			want:  agentstream.SessionIdle{SessionID: "ses_1"},
		},
		{
			name:  "session status busy",
			frame: `{"type":"session.status","properties":{"sessionID":"ses_1","status":{"type":"busy"}}}`,
			want:  agentstream.StatusChanged{SessionID: "ses_1", Status: session.StatusBusy},
		},
		{
			name:  "session status omitted means idle",
			frame: `{"type":"session.status","properties":{"sessionID":"ses_1"}}`,
			want:  agentstream.StatusChanged{SessionID: "ses_1", Status: session.StatusIdle},
		},
		{
			name:  "session error with nested data message",
			frame: `{"type":"session.error","properties":{"sessionID":"ses_1","error":{"name":"ProviderAuthError","data":{"message":"invalid api key"}}}}`,
			want:  agentstream.SessionError{SessionID: "ses_1", Message: "invalid api key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dec.Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodePartUpdatedToolPart(t *testing.T) {
	frame := `{"type":"message.part.updated","properties":{"part":{
		"id":"prt_9","messageID":"msg_1","sessionID":"ses_1","type":"tool",
		"tool":"bash","callID":"call_7",
		"state":{"status":"running","title":"running tests","input":{"command":"go test"},"output":""}
	}}}`

	got, err := Decoder{}.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev, ok := got.(agentstream.PartUpdated)
	if !ok {
		t.Fatalf("expected PartUpdated, got %#v", got)
	}

	// Session and message ids resolve through the nested part object.
	if ev.SessionID != "ses_1" || ev.MessageID != "msg_1" {
		t.Fatalf("expected ids from part, got session=%q message=%q", ev.SessionID, ev.MessageID)
	}
	p := ev.Part
	if p.ID != "prt_9" || p.Kind != conversation.PartTool {
		t.Fatalf("unexpected part identity: %#v", p)
	}
	if p.Tool != "bash" || p.CallID != "call_7" {
		t.Fatalf("unexpected tool fields: %#v", p)
	}
	if p.Status != conversation.ToolRunning || p.Title != "running tests" {
		t.Fatalf("unexpected tool state: %#v", p)
	}
	if string(p.Input) != `{"command":"go test"}` {
		t.Fatalf("unexpected input: %s", p.Input)
	}
}

func TestDecodeStepFinishCarriesUsage(t *testing.T) {
	frame := `{"type":"message.part.updated","properties":{"part":{
		"id":"prt_5","messageID":"msg_1","sessionID":"ses_1","type":"step-finish",
		"tokens":{"input":120,"output":64,"reasoning":8},"cost":0.0031
	}}}`

	got, err := Decoder{}.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := got.(agentstream.PartUpdated).Part
	if p.Kind != conversation.PartStepFinish {
		t.Fatalf("expected step-finish, got %q", p.Kind)
	}
	if p.Usage == nil {
		t.Fatal("expected usage on step-finish part")
	}
	if p.Usage.InputTokens != 120 || p.Usage.OutputTokens != 64 || p.Usage.ReasoningTokens != 8 {
		t.Fatalf("unexpected tokens: %#v", p.Usage)
	}
	if p.Usage.CostUSD != 0.0031 {
		t.Fatalf("unexpected cost: %v", p.Usage.CostUSD)
	}
}

func TestDecodeFlatFrames(t *testing.T) {
	dec := Decoder{}

	t.Run("flat delta", func(t *testing.T) {
		got, err := dec.Decode([]byte(`{"partId":"prt_1","field":"text","delta":"Hi","sessionId":"ses_1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := agentstream.PartDelta{SessionID: "ses_1", PartID: "prt_1", Field: "text", Text: "Hi"}
		if got != want {
			t.Fatalf("expected %#v, got %#v", want, got)
		}
	})

	t.Run("flat part snapshot", func(t *testing.T) {
		got, err := dec.Decode([]byte(`{"partId":"prt_2","part":{"id":"prt_2","type":"text","text":"done","sessionID":"ses_1"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ev, ok := got.(agentstream.PartUpdated)
		if !ok {
			t.Fatalf("expected PartUpdated, got %#v", got)
		}
		if ev.SessionID != "ses_1" {
			t.Fatalf("expected session resolved via part, got %q", ev.SessionID)
		}
		if ev.Part.Text != "done" {
			t.Fatalf("unexpected part: %#v", ev.Part)
		}
	})

	t.Run("flat part without inner id inherits partId", func(t *testing.T) {
		got, err := dec.Decode([]byte(`{"partId":"prt_3","part":{"type":"text","text":"x"}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id := got.(agentstream.PartUpdated).Part.ID; id != "prt_3" {
			t.Fatalf("expected prt_3, got %q", id)
		}
	})
}

func TestDecodeIdentifierResolutionOrder(t *testing.T) {
	// A top-level sessionID must win over the one nested in the part.
	frame := `{"type":"message.part.updated","properties":{
		"sessionID":"ses_outer",
		"part":{"id":"prt_1","type":"text","text":"x","sessionID":"ses_inner"}
	}}`

	got, err := Decoder{}.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sid := got.Session(); sid != "ses_outer" {
		t.Fatalf("expected top-level session to win, got %q", sid)
	}
}

func TestDecodeRecognizedNoise(t *testing.T) {
	dec := Decoder{}

	for _, frame := range []string{
		`{"type":"server.heartbeat"}`,
		`{"type":"server.connected","properties":{}}`,
		`{"type":"message.updated","properties":{"info":{"id":"msg_u","role":"user","sessionID":"ses_1"}}}`,
	} {
		ev, err := dec.Decode([]byte(frame))
		if err != nil {
			t.Fatalf("frame %s: unexpected error: %v", frame, err)
		}
		if ev != nil {
			t.Fatalf("frame %s: expected no event, got %#v", frame, ev)
		}
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	dec := Decoder{}

	for _, frame := range []string{
		`{"type":"installation.updated","properties":{}}`,
		`{"unexpected":"shape"}`,
		`not json at all`,
		`{"type":42}`,
	} {
		_, err := dec.Decode([]byte(frame))
		if !errors.Is(err, agentstream.ErrUnrecognized) {
			t.Fatalf("frame %s: expected ErrUnrecognized, got %v", frame, err)
		}
	}
}

func FuzzDecode(f *testing.F) {
	f.Add([]byte(`{"type":"message.part.delta","properties":{"partID":"p","delta":"x"}}`))
	f.Add([]byte(`{"partId":"p","field":"text","delta":"y"}`))
	f.Add([]byte(`{"type":"session.status","properties":{"status":{"type":"busy"}}}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`[`))

	dec := Decoder{}
	f.Fuzz(func(t *testing.T, frame []byte) {
		// Decoding must never panic; errors are the only acceptable failure.
		_, _ = dec.Decode(frame)
	})
}
