package mocks

import (
	"context"
	"sync"
)

// MockMessageBroker is a mock implementation of message_broaker.MessageBroker for testing.
type MockMessageBroker struct {
	PublishFunc func(ctx context.Context, routingKey string, message []byte) error
	CloseFunc   func() error

	mu   sync.Mutex
	Keys []string
}

func (m *MockMessageBroker) Publish(ctx context.Context, routingKey string, message []byte) error {
	m.mu.Lock()
	m.Keys = append(m.Keys, routingKey)
	m.mu.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, routingKey, message)
	}
	return nil
}

func (m *MockMessageBroker) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *MockMessageBroker) PublishedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Keys...)
}
