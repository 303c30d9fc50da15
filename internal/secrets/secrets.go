// Package secrets keeps credentials out of the config file by storing them
// in the OS keyring.
package secrets

import (
	"errors"

	"github.com/crackomatic/crackomatic/internal/util"
)

const ServiceName = "crackomatic"

var ErrNotFound = errors.New("secret not found")

type Store interface {
	Set(name string, secret string) error
	Get(name string) (string, error)
	Delete(name string) error
}

// DefaultStore returns the standard secret store backed by the OS keychain.
func DefaultStore() Store {
	return NewKeyringStore(ServiceName)
}

// SMTPKey names the keyring entry holding the SMTP password of user.
func SMTPKey(user string) string {
	return "smtp:" + util.NormalizeKey(user)
}

// SMTPPassword returns the stored SMTP password of user, or "" when none
// is stored.
func SMTPPassword(s Store, user string) (string, error) {
	if user == "" {
		return "", nil
	}
	pw, err := s.Get(SMTPKey(user))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return pw, err
}
