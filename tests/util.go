// Package testutil holds fixtures shared by the tests of several packages.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// RSAKeyPEM generates a PKCS1 PEM encoded RSA private key.
func RSAKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("RSAKeyPEM(): %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, pem.EncodeToMemory(block)
}

// EncodePrivateKey encodes a PEM key the way it is set in the environment: newlines escaped, then base64.
func EncodePrivateKey(keyPEM []byte) string {
	escaped := strings.ReplaceAll(string(keyPEM), "\n", `\n`)
	return base64.StdEncoding.EncodeToString([]byte(escaped))
}

// HS256Token signs a token for subject with secret, expiring after ttl (negative for an expired token).
func HS256Token(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Add(-time.Minute).Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("HS256Token(): %v", err)
	}
	return ss
}
