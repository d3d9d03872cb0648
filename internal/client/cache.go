package client

import "sync"

// SessionCache maps peer ids to derived symmetric keys. Entries are never
// evicted; ids are per connection so a key can not outlive its pairing.
type SessionCache struct {
	mutex sync.RWMutex
	keys  map[string][]byte
}

func NewSessionCache() *SessionCache {
	return &SessionCache{keys: make(map[string][]byte)}
}

func (s *SessionCache) Get(peerID string) ([]byte, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	key, ok := s.keys[peerID]
	return key, ok
}

// Put stores key for peerID. The last write wins.
func (s *SessionCache) Put(peerID string, key []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.keys[peerID] = key
}

func (s *SessionCache) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.keys)
}
