package secrets

import "github.com/crackomatic/crackomatic/internal/util"

// MockStore is an in-memory secret store for testing.
type MockStore struct {
	secrets map[string]string
}

func NewMockStore() *MockStore {
	return &MockStore{secrets: make(map[string]string)}
}

func (m *MockStore) Set(name string, secret string) error {
	m.secrets[util.NormalizeKey(name)] = secret
	return nil
}

func (m *MockStore) Get(name string) (string, error) {
	secret, ok := m.secrets[util.NormalizeKey(name)]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MockStore) Delete(name string) error {
	key := util.NormalizeKey(name)
	if _, ok := m.secrets[key]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, key)
	return nil
}
