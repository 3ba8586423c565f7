package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor("correct horse battery staple")
	require.NoError(t, err)

	plaintext := []byte(`{"count":1,"licenses":{"ABC-123":{"license_key":"ABC-123"}}}`)
	data, err := enc.EncryptBytes(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ABC-123")

	got, err := enc.DecryptBytes(data)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptor_EmptyPlaintext(t *testing.T) {
	enc, err := NewEncryptor("k")
	require.NoError(t, err)

	data, err := enc.EncryptBytes(nil)
	require.NoError(t, err)

	got, err := enc.DecryptBytes(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncryptor_FreshIVPerCall(t *testing.T) {
	enc, err := NewEncryptor("k")
	require.NoError(t, err)

	a, err := enc.Seal([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Seal([]byte("same"))
	require.NoError(t, err)

	assert.Len(t, a.IV, 12)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.String(), b.String())
}

func TestEncryptor_WrongKey(t *testing.T) {
	enc1, err := NewEncryptor("key-one")
	require.NoError(t, err)
	enc2, err := NewEncryptor("key-two")
	require.NoError(t, err)

	data, err := enc1.EncryptBytes([]byte("secret"))
	require.NoError(t, err)

	_, err = enc2.DecryptBytes(data)
	require.Error(t, err)
	var decryptErr *DecryptError
	assert.ErrorAs(t, err, &decryptErr)
	assert.True(t, IsNotEncrypted(err))
}

func TestEncryptor_Tampered(t *testing.T) {
	enc, err := NewEncryptor("k")
	require.NoError(t, err)

	blob, err := enc.Seal([]byte("payload"))
	require.NoError(t, err)
	blob.Ciphertext[0] ^= 0xff

	_, err = enc.Open(blob)
	var decryptErr *DecryptError
	assert.ErrorAs(t, err, &decryptErr)
}

func TestNewEncryptor_EmptyKey(t *testing.T) {
	_, err := NewEncryptor("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestParseBlob(t *testing.T) {
	validIV := "AAAAAAAAAAAAAAAA" // 12 zero bytes

	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{name: "MissingSeparator", input: "not-a-blob", reason: "missing separator"},
		{name: "PlaintextJSON", input: `{"count":0,"licenses":{}}`, reason: "iv is not base64"},
		{name: "BadIV", input: "!!!:AAAA", reason: "iv is not base64"},
		{name: "ShortIV", input: "AAAA:AAAA", reason: "iv must be 12 bytes"},
		{name: "BadCiphertext", input: validIV + ":***", reason: "ciphertext is not base64"},
		{name: "EmptyCiphertext", input: validIV + ":", reason: "empty ciphertext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlob(tt.input)
			require.Error(t, err)
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Contains(t, decodeErr.Reason, tt.reason)
			assert.True(t, IsNotEncrypted(err))
		})
	}
}

func TestParseBlob_TrimsWhitespace(t *testing.T) {
	enc, err := NewEncryptor("k")
	require.NoError(t, err)
	data, err := enc.EncryptBytes([]byte("x"))
	require.NoError(t, err)

	got, err := enc.DecryptBytes([]byte("\n" + string(data) + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestIsNotEncrypted_OtherErrors(t *testing.T) {
	assert.False(t, IsNotEncrypted(os.ErrNotExist))
	assert.False(t, IsNotEncrypted(nil))
}

func TestResolveKey(t *testing.T) {
	t.Run("FromEnv", func(t *testing.T) {
		t.Setenv(EnvKey, "from-env")
		key, err := ResolveKey(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "from-env", key)
	})

	t.Run("FromFile", func(t *testing.T) {
		t.Setenv(EnvKey, "")
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "auth"), 0700))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "auth", "encryption_key"), []byte("from-file\n"), 0600))

		key, err := ResolveKey(dir)
		require.NoError(t, err)
		assert.Equal(t, "from-file", key)
	})

	t.Run("GeneratedAndPersisted", func(t *testing.T) {
		t.Setenv(EnvKey, "")
		dir := t.TempDir()

		key, err := ResolveKey(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, key)

		path := filepath.Join(dir, "auth", "encryption_key")
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		again, err := ResolveKey(dir)
		require.NoError(t, err)
		assert.Equal(t, key, again)
		assert.False(t, strings.ContainsAny(key, "\n "))
	})
}
