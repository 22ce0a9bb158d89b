package state

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "sidebridge-cli"
	tokenKey    = "sender_token"
)

// SaveToken stores the sender token in the OS keyring.
func SaveToken(token string) error {
	return keyring.Set(serviceName, tokenKey, token)
}

// LoadToken returns "" when no token has been saved.
func LoadToken() (string, error) {
	token, err := keyring.Get(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	return token, err
}

func DeleteToken() error {
	err := keyring.Delete(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
