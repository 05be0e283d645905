package runrecorder

import (
	"encoding/json"
	"time"
)

// Envelope is the wire form written by events.Publisher with the payload
// left undecoded until the event name is known.
type Envelope struct {
	EventName string          `json:"event_name"`
	EventID   string          `json:"event_id"`
	TS        time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data"`
}
