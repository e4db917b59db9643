package interop

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Tags understood on the two ports.
const (
	TagInitData             = "InitData"
	TagStoreSessionPoolName = "StoreSessionPoolName"
)

var codec = sonic.ConfigStd

var jsonNull = []byte("null")

// Envelope is the tagged value exchanged on both ports.
type Envelope struct {
	Tag  json.RawMessage `json:"tag,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InitData is the payload of the InitData message.
type InitData struct {
	PoolName json.RawMessage `json:"poolName"`
	Version  string          `json:"version"`
}

// DecodeEnvelope parses an outbound message.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// HasTag reports whether the tag is present and not null.
func (e Envelope) HasTag() bool {
	tag := bytes.TrimSpace(e.Tag)
	return len(tag) > 0 && !bytes.Equal(tag, jsonNull)
}

// TagName returns the tag as a string. Tags that are not JSON strings are
// returned as their raw JSON text so they can still be logged.
func (e Envelope) TagName() string {
	if !e.HasTag() {
		return ""
	}
	var name string
	if err := codec.Unmarshal(e.Tag, &name); err != nil {
		return string(bytes.TrimSpace(e.Tag))
	}
	return name
}

// encodeInit renders the InitData message as the text sent on the inbound port.
func encodeInit(poolName json.RawMessage, version string) (string, error) {
	tag, err := codec.Marshal(TagInitData)
	if err != nil {
		return "", fmt.Errorf("encode tag: %w", err)
	}
	data, err := codec.Marshal(InitData{PoolName: poolName, Version: version})
	if err != nil {
		return "", fmt.Errorf("encode init data: %w", err)
	}
	text, err := codec.MarshalToString(Envelope{Tag: tag, Data: data})
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return text, nil
}

// serializeValue renders a command's data the way it is persisted. Absent
// data is stored as null so that the next startup can still parse it.
func serializeValue(data json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return string(jsonNull), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return "", fmt.Errorf("serialize value: %w", err)
	}
	return buf.String(), nil
}

// parseStored turns a persisted value back into JSON. Missing or empty values
// decode as null.
func parseStored(stored string, ok bool) (json.RawMessage, error) {
	if !ok || stored == "" {
		return nil, nil
	}
	raw := []byte(stored)
	if !codec.Valid(raw) {
		return nil, fmt.Errorf("stored value is not valid JSON: %q", stored)
	}
	return json.RawMessage(raw), nil
}
