package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncryptionKey_HexAndBase64(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff"
	key, err := DecodeEncryptionKey(hexKey)
	require.NoError(t, err)
	require.Len(t, key, 16)

	raw := []byte("01234567890123456789012345678901") // 32 bytes -> valid DEK size
	raw = raw[:32]
	b64 := base64.StdEncoding.EncodeToString(raw)
	key, err = DecodeEncryptionKey(b64)
	require.NoError(t, err)
	require.Equal(t, raw, key)
}

func TestDecodeEncryptionKey_RejectsWrongLength(t *testing.T) {
	_, err := DecodeEncryptionKey(base64.StdEncoding.EncodeToString([]byte("too-short")))
	require.Error(t, err)
}

func TestDecodeEncryptionKey_RejectsEmpty(t *testing.T) {
	_, err := DecodeEncryptionKey("")
	require.Error(t, err)
}
