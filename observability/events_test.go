package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/aerisfi/aeris-contracts/core/types"
)

type stubEvent struct {
	evt *types.Event
}

func (s stubEvent) EventType() string {
	if s.evt == nil {
		return ""
	}
	return s.evt.Type
}

func (s stubEvent) Event() *types.Event { return s.evt }

func TestEventLoggerWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	emitter := NewEventLogger(logger)
	emitter.Emit(stubEvent{evt: &types.Event{
		Type: "escrow.order.created",
		Attributes: map[string]string{
			"id":     "0x00000000000000000000000000000001",
			"status": "awaiting_delivery",
		},
	}})

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if record["event"] != "escrow.order.created" {
		t.Fatalf("expected event type logged, got %v", record["event"])
	}
	if record["id"] != "0x00000000000000000000000000000001" {
		t.Fatalf("expected id attribute logged, got %v", record["id"])
	}
	if record["status"] != "awaiting_delivery" {
		t.Fatalf("expected status attribute logged, got %v", record["status"])
	}
}

func TestEventLoggerToleratesNilInputs(t *testing.T) {
	emitter := NewEventLogger(nil)
	emitter.Emit(nil)
	emitter.Emit(stubEvent{})

	var nilLogger *EventLogger
	nilLogger.Emit(stubEvent{evt: &types.Event{Type: "x"}})
}
