package memory

import (
	"sync"
	"time"

	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
)

type tokenKey struct {
	origin    string
	serviceID string
}

type tokenStore struct {
	store  map[tokenKey]model.AccessToken
	nextID int32
	sync.RWMutex
}

func newTokenStore() *tokenStore {
	return &tokenStore{
		store:  make(map[tokenKey]model.AccessToken),
		nextID: 1,
	}
}

func (s *tokenStore) FindByOriginAndServiceID(origin, serviceID string) (*model.AccessToken, error) {
	s.RLock()
	defer s.RUnlock()

	m, ok := s.store[tokenKey{origin, serviceID}]
	if !ok || m.Expired(time.Now()) {
		return nil, storage.ErrNotFound
	}

	return &m, nil
}

func (s *tokenStore) Create(m *model.AccessToken) error {
	s.Lock()
	defer s.Unlock()

	m.ID = s.getNextID()
	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	// A new token for the same origin and service replaces the old one
	s.store[tokenKey{m.Origin, m.ServiceID}] = *m

	return nil
}

func (s *tokenStore) DeleteByOrigin(origin string) (int, error) {
	s.Lock()
	defer s.Unlock()

	n := 0
	for key := range s.store {
		if key.origin == origin {
			delete(s.store, key)
			n++
		}
	}

	return n, nil
}

func (s *tokenStore) getNextID() int32 {
	id := s.nextID
	s.nextID++
	return id
}
