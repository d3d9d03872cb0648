package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"secure_messenger/internal/key_exchange"
	"secure_messenger/internal/protocol"
)

// ErrUnknownPeer is returned when no roster has listed the peer id yet.
var ErrUnknownPeer = errors.New("unknown peer")

// Session is everything one chat identity needs to encrypt and decrypt:
// its key pair, the keys derived so far and the last rosters seen.
type Session struct {
	username  string
	avatar    string
	keys      key_exchange.KeyPair
	publicJWK json.RawMessage
	cache     *SessionCache

	mutex  sync.RWMutex
	self   protocol.Member
	known  bool
	roster []protocol.Member
	peers  map[string]protocol.Member
}

// NewSession generates a fresh key pair for username.
func NewSession(username, avatar string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username must not be empty")
	}

	keys, err := key_exchange.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	jwk, err := key_exchange.ExportPublicKey(keys.PublicKey)
	if err != nil {
		return nil, err
	}

	return &Session{
		username:  username,
		avatar:    avatar,
		keys:      keys,
		publicJWK: jwk,
		cache:     NewSessionCache(),
		peers:     make(map[string]protocol.Member),
	}, nil
}

func (s *Session) Username() string {
	return s.username
}

// PublicKey returns the JWK announced in JOIN.
func (s *Session) PublicKey() json.RawMessage {
	return s.publicJWK
}

// Join builds the JOIN payload for this identity.
func (s *Session) Join() *protocol.Join {
	return &protocol.Join{
		Username:  s.username,
		Avatar:    s.avatar,
		PublicKey: s.publicJWK,
	}
}

// ApplyRoster replaces the current room roster. Members are also kept in a
// directory of every peer seen so far so that direct messages from other
// rooms can still be decrypted. The relay never tells a client its own id;
// it is recognised by its public key.
func (s *Session) ApplyRoster(members []protocol.Member) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.roster = append([]protocol.Member(nil), members...)
	for _, m := range members {
		s.peers[m.ID] = m
		if !s.known && key_exchange.SamePublicKey(m.PublicKey, s.publicJWK) {
			s.self = m
			s.known = true
		}
		if s.known && m.ID == s.self.ID {
			s.self = m
		}
	}
}

// Self returns this identity's roster row once a roster has listed it.
func (s *Session) Self() (protocol.Member, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.self, s.known
}

// Roster returns a copy of the last roster received.
func (s *Session) Roster() []protocol.Member {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]protocol.Member(nil), s.roster...)
}

// Peer looks up a member by id in every roster seen so far.
func (s *Session) Peer(id string) (protocol.Member, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	m, ok := s.peers[id]
	return m, ok
}

// FindPeer resolves an id or a username in the current roster.
func (s *Session) FindPeer(ref string) (protocol.Member, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if m, ok := s.peers[ref]; ok {
		return m, true
	}
	for _, m := range s.roster {
		if strings.EqualFold(m.Username, ref) {
			return m, true
		}
	}
	return protocol.Member{}, false
}

// SharedKey returns the symmetric key for peerID, deriving and caching it
// on first use.
func (s *Session) SharedKey(peerID string) ([]byte, error) {
	if key, ok := s.cache.Get(peerID); ok {
		return key, nil
	}

	peer, ok := s.Peer(peerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}
	remote, err := key_exchange.ImportPublicKey(peer.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("peer %s: %w", peerID, err)
	}
	key, err := key_exchange.DeriveSharedKey(s.keys.PrivateKey, remote)
	if err != nil {
		return nil, fmt.Errorf("peer %s: %w", peerID, err)
	}

	s.cache.Put(peerID, key)
	return key, nil
}

// Seal encrypts content for peerID.
func (s *Session) Seal(peerID string, content key_exchange.MessageContent) (key_exchange.EncryptedBody, error) {
	key, err := s.SharedKey(peerID)
	if err != nil {
		return key_exchange.EncryptedBody{}, err
	}
	return key_exchange.SealContent(key, content)
}

// Open decrypts a body received from peerID.
func (s *Session) Open(peerID string, body key_exchange.EncryptedBody) (key_exchange.MessageContent, error) {
	key, err := s.SharedKey(peerID)
	if err != nil {
		return key_exchange.MessageContent{}, err
	}
	return key_exchange.OpenContent(key, body)
}

// CachedKeys reports how many peer keys have been derived.
func (s *Session) CachedKeys() int {
	return s.cache.Len()
}
