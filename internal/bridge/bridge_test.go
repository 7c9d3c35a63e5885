package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForwarder struct {
	category string
	records  []map[string]any
	calls    int
}

func (f *fakeForwarder) Info(category string, records []map[string]any) error {
	f.category = category
	f.records = records
	f.calls++
	return nil
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// TestHandleForwardsBatch checks topic-to-category mapping
func TestHandleForwardsBatch(t *testing.T) {
	fwd := &fakeForwarder{}
	b := New(nil, fwd)

	b.handle(nil, &fakeMessage{
		topic:   TopicPrefix + "pdus",
		payload: []byte(`[{"id":3,"draw_watts":42.5,"on":true}]`),
	})

	assert.Equal(t, "pdus", fwd.category)
	require.Len(t, fwd.records, 1)
	assert.Equal(t, float64(3), fwd.records[0]["id"])
	assert.Equal(t, true, fwd.records[0]["on"])
}

// TestHandleDropsBadInput checks that junk topics and payloads never
// reach the sidecar
func TestHandleDropsBadInput(t *testing.T) {
	fwd := &fakeForwarder{}
	b := New(nil, fwd)

	// nested topic levels do not name a category
	b.handle(nil, &fakeMessage{
		topic:   TopicPrefix + "pdus/extra",
		payload: []byte(`[]`),
	})
	// a bare prefix has no category either
	b.handle(nil, &fakeMessage{
		topic:   TopicPrefix,
		payload: []byte(`[]`),
	})
	// payload must be a record list
	b.handle(nil, &fakeMessage{
		topic:   TopicPrefix + "nodes",
		payload: []byte(`{"id":5}`),
	})

	assert.Zero(t, fwd.calls)
}
