package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tink-crypto/tink-go/aead"
	"github.com/tink-crypto/tink-go/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/keyset"
	"github.com/tink-crypto/tink-go/tink"
)

// Cipher encrypts credential material at rest
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AEADCipher is a tink AES256-GCM Cipher
type AEADCipher struct {
	handle    *keyset.Handle
	primitive tink.AEAD
}

// NewAEADCipher creates a cipher over handle
func NewAEADCipher(handle *keyset.Handle) (*AEADCipher, error) {
	if handle == nil {
		return nil, fmt.Errorf("keyset handle is required")
	}
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("aead.New failed: %w", err)
	}
	return &AEADCipher{handle: handle, primitive: primitive}, nil
}

// GenerateKeyset creates a fresh AES256-GCM keyset
func GenerateKeyset() (*keyset.Handle, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("keyset.NewHandle failed: %w", err)
	}
	return handle, nil
}

// LoadKeyset reads a cleartext JSON keyset. Cleartext keysets are meant
// for local development only.
func LoadKeyset(path string) (*keyset.Handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyset: %w", err)
	}
	defer f.Close()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read keyset: %w", err)
	}
	return handle, nil
}

// SaveKeyset writes handle as a cleartext JSON keyset readable only by the
// owner. An existing file is never overwritten.
func SaveKeyset(handle *keyset.Handle, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create keyset directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create keyset file: %w", err)
	}

	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(f)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write keyset: %w", err)
	}
	return f.Close()
}

// LoadOrCreateKeyset loads the keyset at path, generating and saving one
// when the file does not exist
func LoadOrCreateKeyset(path string) (*keyset.Handle, bool, error) {
	if _, err := os.Stat(path); err == nil {
		handle, err := LoadKeyset(path)
		return handle, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to stat keyset: %w", err)
	}

	handle, err := GenerateKeyset()
	if err != nil {
		return nil, false, err
	}
	if err := SaveKeyset(handle, path); err != nil {
		return nil, false, err
	}
	return handle, true, nil
}

// Encrypt implements Cipher
func (c *AEADCipher) Encrypt(plaintext []byte) ([]byte, error) {
	ct, err := c.primitive.Encrypt(plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return ct, nil
}

// Decrypt implements Cipher
func (c *AEADCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := c.primitive.Decrypt(ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return pt, nil
}
