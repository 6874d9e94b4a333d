package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Directive values carried in the "command" payload key. A directive
// supersedes any motion fields present in the same payload.
const (
	DirectiveRestart  = "restart"
	DirectiveShutdown = "shutdown"
)

// MotorCommand is one decoded operator instruction. Wheel targets are
// normalized speeds in [-1, 1]; absent wheel keys decode as 0.
type MotorCommand struct {
	LF float64
	LR float64
	RF float64
	RR float64

	// CmdID is a correlation identifier echoed back in an acknowledgement
	// frame. Valid only when HasCmdID is set.
	CmdID    int64
	HasCmdID bool

	// Directive is empty for plain motion commands.
	Directive string
}

// Clamp bounds a wheel target to [-1, 1].
func Clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// DecodeCommand deserializes a CBOR map payload into a MotorCommand.
func DecodeCommand(payload []byte) (MotorCommand, error) {
	var raw map[string]any
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return MotorCommand{}, fmt.Errorf("decode command: %w", err)
	}

	var cmd MotorCommand
	if v, ok := raw["command"]; ok {
		if s, ok := v.(string); ok {
			cmd.Directive = s
			return cmd, nil
		}
		return MotorCommand{}, fmt.Errorf("decode command: non-string directive %T", v)
	}

	cmd.LF = numericField(raw, "lf")
	cmd.LR = numericField(raw, "lr")
	cmd.RF = numericField(raw, "rf")
	cmd.RR = numericField(raw, "rr")
	if v, ok := raw["cmd_id"]; ok {
		id, ok := integerValue(v)
		if !ok {
			return MotorCommand{}, fmt.Errorf("decode command: non-integer cmd_id %T", v)
		}
		cmd.CmdID = id
		cmd.HasCmdID = true
	}
	return cmd, nil
}

// EncodeCommand serializes a command as a CBOR map, without framing.
func EncodeCommand(cmd MotorCommand) ([]byte, error) {
	m := map[string]any{}
	if cmd.Directive != "" {
		m["command"] = cmd.Directive
	} else {
		m["lf"] = cmd.LF
		m["lr"] = cmd.LR
		m["rf"] = cmd.RF
		m["rr"] = cmd.RR
	}
	if cmd.HasCmdID {
		m["cmd_id"] = cmd.CmdID
	}
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return data, nil
}

// EncodeAck serializes the acknowledgement payload for a correlation id.
func EncodeAck(id int64) ([]byte, error) {
	data, err := cbor.Marshal(map[string]any{"cmd_id": id})
	if err != nil {
		return nil, fmt.Errorf("encode ack: %w", err)
	}
	return data, nil
}

// DecodeAck extracts the correlation id from an acknowledgement payload.
func DecodeAck(payload []byte) (int64, error) {
	var raw map[string]any
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return 0, fmt.Errorf("decode ack: %w", err)
	}
	v, ok := raw["cmd_id"]
	if !ok {
		return 0, fmt.Errorf("decode ack: missing cmd_id")
	}
	id, ok := integerValue(v)
	if !ok {
		return 0, fmt.Errorf("decode ack: non-integer cmd_id %T", v)
	}
	return id, nil
}

func numericField(raw map[string]any, key string) float64 {
	v, ok := raw[key]
	if !ok {
		return 0
	}
	f, ok := numericValue(v)
	if !ok {
		return 0
	}
	return f
}

// CBOR integers surface as uint64/int64 and floats as float64/float32
// depending on how the sender encoded them.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func integerValue(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
