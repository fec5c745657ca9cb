package transport

import (
	"fmt"
	"io"
	"sync"

	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/message"
)

// Memory is an in-process Transport. Sent messages are copied into memory,
// so file-backed messages may be removed once Send returns.
type Memory struct {
	sink
	mu      sync.Mutex
	pending *codec.WireMessage
	sent    int
}

var _ Transport = (*Memory)(nil)

// NewMemory returns an empty Memory whose PutBinary uses form.
func NewMemory(form codec.Format) *Memory {
	m := &Memory{}
	m.sink = sink{send: m.Send, form: form}
	return m
}

func (m *Memory) Send(msg codec.WireMessage) error {
	body, err := readPart(msg.Body, msg.BodyPath)
	if err != nil {
		return err
	}
	data, err := readPart(msg.Data, msg.DataPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &codec.WireMessage{Format: msg.Format, Body: body, Data: data}
	m.sent++
	return nil
}

func (m *Memory) Receive() (codec.WireMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return codec.WireMessage{}, fmt.Errorf("memory transport: %w", message.ErrEmpty)
	}
	return *m.pending, nil
}

// Ack clears the pending message.
func (m *Memory) Ack(codec.WireMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

// Sent returns the number of messages sent so far.
func (m *Memory) Sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func readPart(mem []byte, p string) ([]byte, error) {
	if p == "" {
		return mem, nil
	}
	rc, err := openPart(nil, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return b, nil
}
