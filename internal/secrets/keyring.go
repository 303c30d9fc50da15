package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"

	"github.com/crackomatic/crackomatic/internal/util"
)

type KeyringStore struct {
	serviceName string
}

func NewKeyringStore(serviceName string) *KeyringStore {
	if serviceName == "" {
		serviceName = ServiceName
	}
	return &KeyringStore{serviceName: serviceName}
}

func (k *KeyringStore) Set(name string, secret string) error {
	return keyring.Set(k.serviceName, util.NormalizeKey(name), secret)
}

func (k *KeyringStore) Get(name string) (string, error) {
	secret, err := keyring.Get(k.serviceName, util.NormalizeKey(name))
	if err == nil {
		return secret, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return "", err
}

func (k *KeyringStore) Delete(name string) error {
	err := keyring.Delete(k.serviceName, util.NormalizeKey(name))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
