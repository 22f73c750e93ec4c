package signal

import (
	"encoding/json"
	"testing"

	"peercall/native/internal/domain"

	"github.com/gorilla/websocket"
)

func TestCodecByName(t *testing.T) {
	for name, want := range map[string]Codec{"": JSON, "json": JSON, "msgpack": Msgpack} {
		got, err := CodecByName(name)
		if err != nil || got != want {
			t.Errorf("CodecByName(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := CodecByName("xml"); err == nil {
		t.Error("CodecByName(xml) error = nil")
	}
	if CodecFor(websocket.BinaryMessage) != Msgpack || CodecFor(websocket.TextMessage) != JSON {
		t.Error("CodecFor mismatch")
	}
}

func TestJSONEnvelopeShape(t *testing.T) {
	b, err := JSON.Encode(domain.EventOffer, domain.DescriptionMessage{
		SDP:       domain.SDPPayload{Type: "offer", SDP: "v=0"},
		TargetSID: "X",
		RoomID:    "R",
	})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["event"] != "offer" {
		t.Errorf("event = %v", raw["event"])
	}
	data := raw["data"].(map[string]any)
	if data["target_sid"] != "X" || data["room_id"] != "R" {
		t.Errorf("data = %v", data)
	}
	if _, ok := data["sender_sid"]; ok {
		t.Error("outbound offer should omit sender_sid")
	}
}

func TestMsgpackFrameAsJSON(t *testing.T) {
	frame, err := NewFrame(Msgpack, domain.EventWhiteboardDraw, map[string]any{"x": 3, "color": "red"})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := frame.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("JSON() = %s: %v", raw, err)
	}
	if got["color"] != "red" || got["x"].(float64) != 3 {
		t.Errorf("got %v", got)
	}
}

func TestDecodeRejectsMissingEvent(t *testing.T) {
	if _, err := JSON.Decode([]byte(`{"data":{}}`)); err == nil {
		t.Error("JSON.Decode without event: error = nil")
	}
	if _, err := JSON.Decode([]byte(`not json`)); err == nil {
		t.Error("JSON.Decode garbage: error = nil")
	}
}
