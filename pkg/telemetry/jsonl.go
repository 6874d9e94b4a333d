package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// JSONLWriter appends one JSON object per event to a writer, for
// post-run inspection of safety edges and command flow.
type JSONLWriter struct {
	enc *json.Encoder
}

type jsonRecord struct {
	TS     string       `json:"ts"`
	Kind   Kind         `json:"kind"`
	Wheels *WheelValues `json:"wheels,omitempty"`
	CmdID  *int64       `json:"cmd_id,omitempty"`
	Detail string       `json:"detail,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Consume drains events until the context ends or the channel closes.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			_ = j.enc.Encode(jsonRecord{
				TS:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
				Kind:   ev.Kind,
				Wheels: ev.Wheels,
				CmdID:  ev.CmdID,
				Detail: ev.Detail,
			})
		}
	}
}
