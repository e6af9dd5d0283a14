// Package signer computes and verifies the digests exchanged with the
// pricing provider.
//
// Digests are always computed over the exact bytes that travel on the wire.
package signer

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

const sha1Prefix = "sha1="

var ErrSecretNotConfigured = errors.New("signing secret is not configured")

// Sign returns "sha1=<hex>" of HMAC-SHA1(secret, payload).
func Sign(secret, payload []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrSecretNotConfigured
	}
	return sha1Prefix + hex.EncodeToString(mac(secret, payload)), nil
}

// Verify reports whether received is a valid "sha1=<hex>" digest of payload.
//
// A missing, malformed or mismatching digest is reported as false with nil
// error. The only error is [ErrSecretNotConfigured].
func Verify(secret, payload []byte, received string) (bool, error) {
	if len(secret) == 0 {
		return false, ErrSecretNotConfigured
	}

	hexDigest, ok := strings.CutPrefix(strings.TrimSpace(received), sha1Prefix)
	if !ok {
		return false, nil
	}

	// digests are compared as lowercase hex text, byte for byte
	want := hex.EncodeToString(mac(secret, payload))
	return hmac.Equal([]byte(hexDigest), []byte(want)), nil
}

// RequestSign returns the request-level sign expected by the provider:
// lowercase hex MD5 of username+apiKey+command.
func RequestSign(username, apiKey, command string) string {
	sum := md5.Sum([]byte(username + apiKey + command))
	return hex.EncodeToString(sum[:])
}

func mac(secret, payload []byte) []byte {
	h := hmac.New(sha1.New, secret)
	h.Write(payload)
	return h.Sum(nil)
}
