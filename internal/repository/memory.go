package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gerrot/api/internal/model"
)

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Projects []model.Project       `json:"projects"`
	Versions []model.ScriptVersion `json:"versions"`
	Clients  []model.Client        `json:"clients"`
}

// Memory is a Store held in process memory. It backs development setups
// without a database and the tests.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	versions map[string]model.ScriptVersion
	clients  map[string]model.Client
}

func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]model.Project),
		versions: make(map[string]model.ScriptVersion),
		clients:  make(map[string]model.Client),
	}
}

// LoadSeed reads a Seed file into a new Memory store.
func LoadSeed(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	m := NewMemory()
	for _, p := range seed.Projects {
		m.PutProject(p)
	}
	for _, v := range seed.Versions {
		m.PutVersion(v)
	}
	for _, c := range seed.Clients {
		m.PutClient(c)
	}
	return m, nil
}

func (m *Memory) PutProject(p model.Project) {
	m.mu.Lock()
	m.projects[p.ID] = p
	m.mu.Unlock()
}

func (m *Memory) PutVersion(v model.ScriptVersion) {
	m.mu.Lock()
	m.versions[v.ID] = v
	m.mu.Unlock()
}

func (m *Memory) PutClient(c model.Client) {
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
}

func (m *Memory) GetProject(_ context.Context, id string) (*model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetVersion(_ context.Context, id string) (*model.ScriptVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *Memory) GetClient(_ context.Context, id string) (*model.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) AttachArtifact(_ context.Context, versionID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionID]
	if !ok {
		return ErrNotFound
	}
	v.GeneratedPDFURL = path
	m.versions[versionID] = v
	return nil
}

func (m *Memory) Close() {}
