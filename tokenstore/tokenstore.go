// Package tokenstore persists the auth token the payment API returns for
// each open payment. The token is required to authorize the payment later,
// so callers that create and authorize in separate processes need the
// Postgres-backed store; single-process callers can use the in-memory one.
package tokenstore

import (
	"context"
	"sync"
)

// Store maps ecommerce IDs to their payment auth tokens.
type Store interface {
	Save(ctx context.Context, ecommerceID, authToken string) error
	// Get reports whether a token is held for the given ID.
	Get(ctx context.Context, ecommerceID string) (string, bool, error)
	Delete(ctx context.Context, ecommerceID string) error
}

// Memory is a process-local Store. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Save(_ context.Context, ecommerceID, authToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[ecommerceID] = authToken
	return nil
}

func (m *Memory) Get(_ context.Context, ecommerceID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[ecommerceID]
	return token, ok, nil
}

func (m *Memory) Delete(_ context.Context, ecommerceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, ecommerceID)
	return nil
}
