// Package fakes holds test doubles shared across packages.
package fakes

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter records written messages in memory.
type KafkaWriter struct {
	mu       sync.Mutex
	messages []kafka.Message

	// Err, when set, is returned by WriteMessages.
	Err error

	closed bool
}

func NewKafkaWriter() *KafkaWriter { return &KafkaWriter{} }

func (w *KafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *KafkaWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Messages returns a copy of everything written so far.
func (w *KafkaWriter) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...)
}

// Closed reports whether Close has been called.
func (w *KafkaWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
