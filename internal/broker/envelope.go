package broker

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/r2lab/sidecar/internal/category"
)

// Action is the envelope verb.
type Action string

const (
	// ActionRequest asks the broker to broadcast the full current
	// contents of a category.
	ActionRequest Action = "request"
	// ActionInfo carries a batch of records updating a category.
	ActionInfo Action = "info"
)

// Envelope is the wire-level unit of the sidecar protocol, identical
// in both directions. Message stays raw until the action says how to
// read it. Incremental marks broker-originated keyed deltas, as
// opposed to full snapshots.
type Envelope struct {
	Category    string          `json:"category"`
	Action      Action          `json:"action"`
	Message     json.RawMessage `json:"message"`
	Incremental bool            `json:"incremental,omitempty"`
}

func parseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// hasMessage distinguishes an absent message key from an explicit
// null, which the protocol allows on requests.
func (env *Envelope) hasMessage() bool {
	return env.Message != nil
}

// isList reports whether the raw message is a JSON array, the only
// shape an info payload may have.
func (env *Envelope) isList() bool {
	trimmed := bytes.TrimLeft(env.Message, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// records decodes an info payload into a batch of category records.
func (env *Envelope) records() ([]category.Record, error) {
	var batch []category.Record
	if err := json.Unmarshal(env.Message, &batch); err != nil {
		return nil, fmt.Errorf("decode info message: %w", err)
	}
	return batch, nil
}
