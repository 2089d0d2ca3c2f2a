// Package streaming defines the live telemetry protocol spoken between the
// simulator and a dashboard server over WebSocket.
//
// Every frame is a JSON Envelope. The server acknowledges run_start and
// run_end with an AckMessage naming the acknowledged type; all other
// frames are fire-and-forget.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/kartlab/vehiclesim/pkg/core"
)

// Frame types.
const (
	TypeRunStart      = "run_start"
	TypeRunEnd        = "run_end"
	TypeAddVehicle    = "add_vehicle"
	TypeVehicleState  = "vehicle_state"
	TypeTuningWarning = "tuning_warning"
	TypeAck           = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"`
	For  string `json:"for"`
}

// RunStartPayload announces a run.
type RunStartPayload struct {
	Run *core.Run `json:"run"`
}

// RunEndPayload closes a run. EndTime is RFC 3339 and empty when unknown.
type RunEndPayload struct {
	RunID    string  `json:"runId"`
	EndTime  string  `json:"endTime"`
	Duration float64 `json:"duration"`
}

// Encode wraps payload in an Envelope of the given type.
func Encode(frameType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", frameType, err)
	}
	return json.Marshal(Envelope{Type: frameType, Payload: raw})
}

// ParseAck decodes an acknowledgement frame. ok is false for anything else.
func ParseAck(frame []byte) (ack AckMessage, ok bool) {
	if err := json.Unmarshal(frame, &ack); err != nil || ack.Type != TypeAck || ack.For == "" {
		return AckMessage{}, false
	}
	return ack, true
}

// RequiresAck reports whether the server acknowledges frames of this type.
func RequiresAck(frameType string) bool {
	return frameType == TypeRunStart || frameType == TypeRunEnd
}
