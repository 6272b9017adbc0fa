package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type decodeFunc func(data []byte) (Message, error)

var registry = map[Kind]decodeFunc{}

func register[T Message]() {
	var zero T
	registry[zero.Kind()] = func(data []byte) (Message, error) {
		var m T
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func init() {
	register[Hello]()
	register[HelloReply]()
	register[RunScan]()
	register[CancelScan]()
	register[ScanProgress]()
	register[ScanProgressBroadcast]()
	register[RunScanActiveTab]()
	register[CancelActiveScan]()
	register[GetStatusForActiveTab]()
	register[StatusReply]()
	register[GotoToxic]()
	register[NextToxic]()
	register[PrevToxic]()
	register[EnsureToxicList]()
	register[ToxicListReply]()
	register[RevealToxic]()
	register[Ack]()
}

// Encode marshals msg into a flat JSON envelope whose "type" field holds
// the message kind.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if _, ok := registry[msg.Kind()]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind())
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Kind(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	kind, _ := json.Marshal(string(msg.Kind())) //nolint:errcheck // strings always marshal
	buf.Write(kind)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Decode parses an envelope. Kinds outside the closed set return
// ErrUnknownKind.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	decode, ok := registry[head.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
	msg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, head.Type, err)
	}
	return msg, nil
}
