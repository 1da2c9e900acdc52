package storage

import (
	"context"
	"fmt"
	"github.com/minus-twelve/browserstate/internal/archive"
	"os"
	"sort"
	"sync"
	"time"
)

type memorySession struct {
	userID    string
	sessionID string
	data      []byte
	updatedAt time.Time
}

// MemoryStore keeps sessions as tar.gz blobs in process memory. When
// maxSessions is reached the least recently uploaded session is evicted.
type MemoryStore struct {
	sessions     map[string]memorySession
	userSessions map[string]map[string]struct{}
	mutex        sync.RWMutex
	maxSessions  int
	tempRoot     string
}

func NewMemoryStore(maxSessions int, tempDir string) *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]memorySession),
		userSessions: make(map[string]map[string]struct{}),
		maxSessions:  maxSessions,
		tempRoot:     tempRoot(tempDir),
	}
}

func memoryKey(userID, sessionID string) string {
	return userID + Delimiter + sessionID
}

func (s *MemoryStore) Download(_ context.Context, userID, sessionID string) (string, error) {
	if err := validateIDs(userID, sessionID); err != nil {
		return "", err
	}

	s.mutex.RLock()
	session, exists := s.sessions[memoryKey(userID, sessionID)]
	s.mutex.RUnlock()

	target, err := workingCopy(s.tempRoot, userID, sessionID)
	if err != nil {
		return "", err
	}
	if !exists {
		return target, nil
	}
	if err := archive.Unpack(session.data, archive.FormatTarGz, target); err != nil {
		os.RemoveAll(target)
		return "", fmt.Errorf("session %s: %w", sessionID, err)
	}
	return target, nil
}

func (s *MemoryStore) Upload(_ context.Context, userID, sessionID, localPath string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}

	data, err := archive.Pack(localPath, archive.FormatTarGz)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := memoryKey(userID, sessionID)
	if _, exists := s.sessions[key]; !exists && s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.deleteInternal(s.findOldestSession())
	}

	s.sessions[key] = memorySession{
		userID:    userID,
		sessionID: sessionID,
		data:      data,
		updatedAt: time.Now(),
	}
	if _, exists := s.userSessions[userID]; !exists {
		s.userSessions[userID] = make(map[string]struct{})
	}
	s.userSessions[userID][sessionID] = struct{}{}
	return nil
}

// findOldestSession expects a non-empty map.
func (s *MemoryStore) findOldestSession() string {
	var oldestKey string
	var oldestTime time.Time

	for key, sess := range s.sessions {
		if oldestKey == "" || sess.updatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = sess.updatedAt
		}
	}
	return oldestKey
}

func (s *MemoryStore) deleteInternal(key string) {
	session, exists := s.sessions[key]
	if !exists {
		return
	}
	if ids, ok := s.userSessions[session.userID]; ok {
		delete(ids, session.sessionID)
		if len(ids) == 0 {
			delete(s.userSessions, session.userID)
		}
	}
	delete(s.sessions, key)
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]string, error) {
	if err := ValidateID("user_id", userID); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := s.userSessions[userID]
	sessions := make([]string, 0, len(ids))
	for id := range ids {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, userID, sessionID string) error {
	if err := validateIDs(userID, sessionID); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.deleteInternal(memoryKey(userID, sessionID))
	return nil
}
