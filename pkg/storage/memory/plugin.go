package memory

import (
	"sync"
	"time"

	"github.com/nsyszr/eventbroker/pkg/model"
	"github.com/nsyszr/eventbroker/pkg/storage"
)

type pluginStore struct {
	store map[string]model.Plugin
	sync.RWMutex
}

func newPluginStore() *pluginStore {
	return &pluginStore{
		store: make(map[string]model.Plugin),
	}
}

func (s *pluginStore) FetchAll() (models map[string]model.Plugin, err error) {
	s.RLock()
	defer s.RUnlock()
	models = make(map[string]model.Plugin, len(s.store))

	for id, m := range s.store {
		models[id] = m
	}

	return models, nil
}

func (s *pluginStore) FindByID(id string) (*model.Plugin, error) {
	s.RLock()
	defer s.RUnlock()
	if m, ok := s.store[id]; ok {
		return &m, nil
	}

	return nil, storage.ErrNotFound
}

func (s *pluginStore) Create(m *model.Plugin) error {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.store[m.ID]; ok {
		return storage.ErrExists
	}

	// Set default values
	if m.SDKVersion == "" {
		m.SDKVersion = "1.0.0"
	}
	if m.ConnectionType == "" {
		m.ConnectionType = model.ConnectionTypeBroadcast
	}

	m.CreatedAt = time.Now().Round(time.Second).UTC()
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	s.store[m.ID] = *m

	return nil
}

func (s *pluginStore) Delete(id string) error {
	s.Lock()
	defer s.Unlock()

	_, ok := s.store[id]
	if !ok {
		return storage.ErrNotFound
	}

	delete(s.store, id)

	return nil
}
