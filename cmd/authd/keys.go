package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// loadSigningKeys reads the configured key material. The files may hold
// PKCS#8 PEM or raw ed25519 bytes; when no public key file is
// configured the public half is derived from the private key.
func loadSigningKeys(auth authConfig) (priv, pub []byte, err error) {
	priv, err = os.ReadFile(auth.PrivateKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read private key: %w", err)
	}
	if auth.PublicKeyFile != "" {
		pub, err = os.ReadFile(auth.PublicKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		return priv, pub, nil
	}

	key, err := parsePrivateKey(priv)
	if err != nil {
		return nil, nil, err
	}
	return priv, []byte(key.Public().(ed25519.PublicKey)), nil
}

func parsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	if len(data) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(data), nil
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key is neither raw ed25519 nor PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want ed25519", parsed)
	}
	return key, nil
}

// generateKeyFiles writes a fresh ed25519 pair for a new deployment.
// Existing files are never overwritten.
func generateKeyFiles(privPath, pubPath string) error {
	if privPath == "" {
		return errors.New("auth.private_key_file must be set to generate keys")
	}
	for _, p := range []string{privPath, pubPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("refusing to overwrite %s", p)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}

	if pubPath != "" {
		pubDER, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return fmt.Errorf("encode public key: %w", err)
		}
		pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
		if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}
	}
	return nil
}
