// Package gpg provides detached OpenPGP signing and signature verification.
package gpg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// armorPrefix opens every armored signature
const armorPrefix = "-----BEGIN PGP SIGNATURE-----"

// Verifier implements OpenPGP signature verification using ProtonMail's
// go-crypto. This is in external-adapters to isolate the external dependency.
type Verifier struct {
	keyring    openpgp.EntityList
	httpClient *http.Client
}

// NewVerifier creates a new GPG verifier
func NewVerifier() *Verifier {
	return &Verifier{
		keyring: make(openpgp.EntityList, 0),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AddEntities adds already parsed keys to the keyring
func (v *Verifier) AddEntities(entities ...*openpgp.Entity) {
	v.keyring = append(v.keyring, entities...)
}

// ImportKeysFromURL imports all keys from a published KEYS file
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", keysURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("KEYS file download failed with status %d", resp.StatusCode)
	}

	entities, err := openpgp.ReadArmoredKeyRing(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}
	if len(entities) == 0 {
		return fmt.Errorf("no keys found in KEYS file")
	}

	v.keyring = append(v.keyring, entities...)
	return nil
}

// ImportKeyFromFile imports a key from an armored or binary key file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	entities, err := readKeyFile(keyPath)
	if err != nil {
		return err
	}
	v.keyring = append(v.keyring, entities...)
	return nil
}

// VerifyReader verifies a detached signature over data. Armored and binary
// signatures are both accepted.
func (v *Verifier) VerifyReader(data, signature io.Reader) (string, error) {
	if len(v.keyring) == 0 {
		return "", fmt.Errorf("no GPG keys imported")
	}

	// Security: signatures are typically < 1KB
	sigData, err := io.ReadAll(io.LimitReader(signature, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read signature: %w", err)
	}
	if len(sigData) < 10 {
		return "", fmt.Errorf("signature too small to be valid")
	}

	var signer *openpgp.Entity
	if bytes.HasPrefix(bytes.TrimSpace(sigData), []byte(armorPrefix)) {
		signer, err = openpgp.CheckArmoredDetachedSignature(v.keyring, data, bytes.NewReader(sigData), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(v.keyring, data, bytes.NewReader(sigData), nil)
	}
	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	return fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint), nil
}

// VerifySignatureFromFile verifies a detached signature from a local file
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	//nolint:gosec // G304: sigPath is user-provided for GPG verification
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer sigFile.Close()

	//nolint:gosec // G304: filePath is user-provided for GPG verification
	dataFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open data file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer dataFile.Close()

	_, err = v.VerifyReader(bufio.NewReader(dataFile), sigFile)
	return err
}

// GetKeyringSize returns the number of keys in the keyring
func (v *Verifier) GetKeyringSize() int {
	return len(v.keyring)
}

func readKeyFile(keyPath string) (openpgp.EntityList, error) {
	//nolint:gosec // G304: keyPath is user-provided for GPG key import
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}

	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		entities, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in file")
	}
	return entities, nil
}
