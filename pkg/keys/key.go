// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// MinRSAKeySize is the smallest RSA modulus accepted for signing keys
const MinRSAKeySize = 2048

// KeyManager holds an RSA signing key pair together with its key identifier.
// It backs the local identity provider used in tests and development.
type KeyManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	kid        string
}

// NewKeyManager creates a new KeyManager instance
func NewKeyManager() *KeyManager {
	return &KeyManager{}
}

// GenerateRSAKeyPair generates a new RSA key pair of at least MinRSAKeySize bits
func (km *KeyManager) GenerateRSAKeyPair() error {
	privateKey, err := rsa.GenerateKey(rand.Reader, MinRSAKeySize)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return km.SetKeyPair(privateKey)
}

// SetKeyPair installs an existing RSA private key and derives its key ID
func (km *KeyManager) SetKeyPair(privateKey *rsa.PrivateKey) error {
	if privateKey == nil {
		return fmt.Errorf("private key must be provided")
	}
	if privateKey.N.BitLen() < MinRSAKeySize {
		return fmt.Errorf("RSA key size %d is below minimum required %d bits", privateKey.N.BitLen(), MinRSAKeySize)
	}

	kid, err := Thumbprint(&privateKey.PublicKey)
	if err != nil {
		return err
	}

	km.privateKey = privateKey
	km.publicKey = &privateKey.PublicKey
	km.kid = kid
	return nil
}

// SetKeyID overrides the derived key ID
func (km *KeyManager) SetKeyID(kid string) {
	km.kid = kid
}

// KeyID returns the key ID published for the public key
func (km *KeyManager) KeyID() string {
	return km.kid
}

// LoadPrivateKey loads a PKCS#1 or PKCS#8 RSA private key from a PEM file
func (km *KeyManager) LoadPrivateKey(keyPath string) error {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}

	block, _ := pem.Decode(keyData)
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	if privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return km.SetKeyPair(privateKey)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not an RSA key")
	}
	return km.SetKeyPair(privateKey)
}

// SavePrivateKey saves the private key to a PEM file
func (km *KeyManager) SavePrivateKey(keyPath string) error {
	if km.privateKey == nil {
		return fmt.Errorf("no private key available")
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(km.privateKey),
	})

	if err := os.WriteFile(keyPath, privateKeyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key file: %w", err)
	}
	return nil
}

// GetRSAPrivateKey returns the RSA private key
func (km *KeyManager) GetRSAPrivateKey() (*rsa.PrivateKey, error) {
	if km.privateKey == nil {
		return nil, fmt.Errorf("private key not set")
	}
	return km.privateKey, nil
}

// GetRSAPublicKey returns the RSA public key
func (km *KeyManager) GetRSAPublicKey() (*rsa.PublicKey, error) {
	if km.publicKey == nil {
		return nil, fmt.Errorf("public key not set")
	}
	return km.publicKey, nil
}

// PublicJWK returns the public key as a signing JWK carrying kid, alg and use
func (km *KeyManager) PublicJWK() (jwk.Key, error) {
	if km.publicKey == nil {
		return nil, fmt.Errorf("public key not set")
	}

	key, err := jwk.FromRaw(km.publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create public JWK: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, km.kid); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, fmt.Errorf("failed to set key algorithm: %w", err)
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}
	return key, nil
}

// Thumbprint returns the base64url RFC 7638 SHA-256 thumbprint of an RSA
// public key, the key ID format used for generated keys.
func Thumbprint(publicKey *rsa.PublicKey) (string, error) {
	key, err := jwk.FromRaw(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to create JWK: %w", err)
	}
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
