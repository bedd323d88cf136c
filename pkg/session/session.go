// Copyright 2025 The Planor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session provides session lifecycle for the orchestration engine.
//
// A session scopes one orchestration flow: one controller, one queue, one
// plan at a time. Callers needing concurrency run one session (and one
// controller) per flow.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Session represents one orchestration session.
type Session struct {
	// ID is the unique session identifier.
	ID string

	// AppName is the owning application.
	AppName string

	// UserID identifies the session owner.
	UserID string

	// State holds arbitrary per-session values.
	State map[string]any

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// UpdatedAt is when the session was last touched.
	UpdatedAt time.Time
}

// Service manages session lifecycle.
type Service interface {
	// Create creates a new session. sessionID is generated when empty.
	Create(ctx context.Context, appName, userID, sessionID string) (*Session, error)

	// Get retrieves a session by ID.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session.
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryService is an in-memory Service.
type InMemoryService struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryService creates an empty session service.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{sessions: make(map[string]*Session)}
}

// Create creates a new session.
func (s *InMemoryService) Create(_ context.Context, appName, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	now := time.Now()
	sess := &Session{
		ID:        sessionID,
		AppName:   appName,
		UserID:    userID,
		State:     make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess, nil
}

// Get retrieves a session by ID.
func (s *InMemoryService) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session.
func (s *InMemoryService) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
