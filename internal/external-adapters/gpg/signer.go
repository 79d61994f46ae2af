package gpg

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signer produces armored detached signatures with a single private key
type Signer struct {
	entity *openpgp.Entity
}

// NewSigner loads the first private key of keyPath, decrypting it with
// passphrase when the key is protected.
func NewSigner(keyPath string, passphrase []byte) (*Signer, error) {
	entities, err := readKeyFile(keyPath)
	if err != nil {
		return nil, err
	}

	for _, entity := range entities {
		if entity.PrivateKey == nil {
			continue
		}
		if err := decryptEntity(entity, passphrase); err != nil {
			return nil, err
		}
		return &Signer{entity: entity}, nil
	}
	return nil, fmt.Errorf("no private key found in %s", keyPath)
}

// NewSignerFromEntity wraps an already decrypted entity
func NewSignerFromEntity(entity *openpgp.Entity) (*Signer, error) {
	if entity == nil || entity.PrivateKey == nil {
		return nil, fmt.Errorf("entity has no private key")
	}
	return &Signer{entity: entity}, nil
}

// SignDetached returns an armored detached signature over message
func (s *Signer) SignDetached(message io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&buf, s.entity, message, nil); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the signing key fingerprint
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("%X", s.entity.PrimaryKey.Fingerprint)
}

func decryptEntity(entity *openpgp.Entity, passphrase []byte) error {
	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return fmt.Errorf("private key is encrypted and no passphrase was given")
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return fmt.Errorf("failed to decrypt subkey: %w", err)
			}
		}
	}
	return nil
}
