package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// blobSeparator joins the encoded IV and ciphertext in the serialized form.
	blobSeparator = ":"
	// nonceSize is the standard GCM nonce length.
	nonceSize = 12
)

// ErrEmptyKey is returned when an Encryptor is created without a passphrase.
var ErrEmptyKey = errors.New("crypto: encryption key cannot be empty")

// Blob is the encrypted representation of one collection file.
type Blob struct {
	IV         []byte
	Ciphertext []byte
}

// String serializes the blob as base64(iv):base64(ciphertext).
func (b Blob) String() string {
	return base64.StdEncoding.EncodeToString(b.IV) + blobSeparator +
		base64.StdEncoding.EncodeToString(b.Ciphertext)
}

// DecodeError reports content that does not have the blob shape.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("crypto: malformed blob: %s: %v", e.Reason, e.Err)
	}
	return "crypto: malformed blob: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecryptError reports a blob that failed authentication, typically because
// it was sealed with a different key or has been altered.
type DecryptError struct {
	Err error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("crypto: failed to decrypt: %v", e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// IsNotEncrypted reports whether err means the input should be read as
// plaintext instead. Both decode and decrypt failures qualify.
func IsNotEncrypted(err error) bool {
	var decodeErr *DecodeError
	var decryptErr *DecryptError
	return errors.As(err, &decodeErr) || errors.As(err, &decryptErr)
}

// Encryptor provides AES-256-GCM encryption/decryption.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor creates an Encryptor by deriving a 32-byte key via SHA-256.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	hash := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(hash[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

// Seal encrypts plaintext under a fresh random IV.
func (e *Encryptor) Seal(plaintext []byte) (Blob, error) {
	iv := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Blob{}, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}
	return Blob{IV: iv, Ciphertext: e.gcm.Seal(nil, iv, plaintext, nil)}, nil
}

// Open decrypts a blob produced by Seal.
func (e *Encryptor) Open(blob Blob) ([]byte, error) {
	if len(blob.IV) != e.gcm.NonceSize() {
		return nil, &DecodeError{Reason: fmt.Sprintf("iv must be %d bytes, got %d", e.gcm.NonceSize(), len(blob.IV))}
	}
	plaintext, err := e.gcm.Open(nil, blob.IV, blob.Ciphertext, nil)
	if err != nil {
		return nil, &DecryptError{Err: err}
	}
	return plaintext, nil
}

// EncryptBytes seals plaintext and returns the serialized blob.
func (e *Encryptor) EncryptBytes(plaintext []byte) ([]byte, error) {
	blob, err := e.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return []byte(blob.String()), nil
}

// DecryptBytes parses and opens a serialized blob.
func (e *Encryptor) DecryptBytes(data []byte) ([]byte, error) {
	blob, err := ParseBlob(string(data))
	if err != nil {
		return nil, err
	}
	return e.Open(blob)
}

// ParseBlob decodes the base64(iv):base64(ciphertext) text form.
func ParseBlob(text string) (Blob, error) {
	text = strings.TrimSpace(text)
	ivPart, ctPart, ok := strings.Cut(text, blobSeparator)
	if !ok {
		return Blob{}, &DecodeError{Reason: "missing separator"}
	}
	iv, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return Blob{}, &DecodeError{Reason: "iv is not base64", Err: err}
	}
	if len(iv) != nonceSize {
		return Blob{}, &DecodeError{Reason: fmt.Sprintf("iv must be %d bytes, got %d", nonceSize, len(iv))}
	}
	ct, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return Blob{}, &DecodeError{Reason: "ciphertext is not base64", Err: err}
	}
	if len(ct) == 0 {
		return Blob{}, &DecodeError{Reason: "empty ciphertext"}
	}
	return Blob{IV: iv, Ciphertext: ct}, nil
}
