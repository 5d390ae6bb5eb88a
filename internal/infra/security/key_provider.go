package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrKeyIDMissing indicates a token header carried no kid.
	ErrKeyIDMissing = errors.New("identity: missing key identifier")
	// ErrKeyNotFound indicates the kid is not part of the trusted key set.
	ErrKeyNotFound = errors.New("identity: key not found")
)

// KeyProvider resolves identity provider verification keys by kid.
type KeyProvider interface {
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
}

// DirKeyProvider serves RSA public keys loaded from PEM files in a directory.
// The kid of each key is its file name without extension. Private keys are
// accepted and reduced to their public half.
type DirKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewDirKeyProvider loads every PEM file in keyDir.
func NewDirKeyProvider(keyDir string) (*DirKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &DirKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		key, err := parseRSAPublicKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		provider.keys[kid] = key
	}

	if len(provider.keys) == 0 {
		return nil, fmt.Errorf("no verification keys found in %s", keyDir)
	}

	return provider, nil
}

// NewStaticKeyProvider builds a provider from already parsed keys.
func NewStaticKeyProvider(keys map[string]*rsa.PublicKey) *DirKeyProvider {
	copied := make(map[string]*rsa.PublicKey, len(keys))
	for kid, key := range keys {
		copied[kid] = key
	}
	return &DirKeyProvider{keys: copied}
}

// GetVerificationKey returns the public key registered under kid.
func (p *DirKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	p.mu.RLock()
	key, ok := p.keys[kid]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func parseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// PKCS#1 private key
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &key.PublicKey, nil
	}

	// PKCS#8 private key
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return &rsaKey.PublicKey, nil
		}
	}

	// PKCS#1 public key
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	// PKIX public key
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
	}

	return nil, errors.New("unsupported key format")
}
