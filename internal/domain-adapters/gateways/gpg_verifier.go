package gateways

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ochairo/distill/internal/external-adapters/gpg"
)

// gpgVerifier wraps the external GPG adapter for verifying published
// artifact signatures.
type gpgVerifier struct {
	verifier *gpg.Verifier
}

// NewGPGVerifier creates a GPG verifier trusting the keys in keyPath
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewGPGVerifier(keyPath string) (*gpgVerifier, error) {
	v := gpg.NewVerifier()
	if err := v.ImportKeyFromFile(keyPath); err != nil {
		return nil, fmt.Errorf("failed to import GPG key from file: %w", err)
	}
	return &gpgVerifier{verifier: v}, nil
}

// NewGPGVerifierFromLocation trusts the keys at an http(s) URL or in a file
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewGPGVerifierFromLocation(ctx context.Context, location string) (*gpgVerifier, error) {
	if !strings.HasPrefix(location, "https://") && !strings.HasPrefix(location, "http://") {
		return NewGPGVerifier(location)
	}
	v := gpg.NewVerifier()
	if err := v.ImportKeysFromURL(ctx, location); err != nil {
		return nil, fmt.Errorf("failed to import GPG keys from URL: %w", err)
	}
	return &gpgVerifier{verifier: v}, nil
}

// VerifyGPGSignature verifies a detached signature over data and returns the
// signer fingerprint.
func (g *gpgVerifier) VerifyGPGSignature(data, signature io.Reader) (string, error) {
	fingerprint, err := g.verifier.VerifyReader(data, signature)
	if err != nil {
		return "", fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return fingerprint, nil
}

// VerifyGPGSignatureFromFile verifies a detached signature from a local file
func (g *gpgVerifier) VerifyGPGSignatureFromFile(filePath, sigPath string) error {
	if err := g.verifier.VerifySignatureFromFile(filePath, sigPath); err != nil {
		return fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return nil
}
