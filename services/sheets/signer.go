package sheets

import (
	"crypto/rsa"
	"encoding/base64"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// Signer signs assertion claims. Key material never leaves its implementation.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
}

// RS256Signer signs with a service identity RSA private key.
type RS256Signer struct {
	key *rsa.PrivateKey
}

var _ Signer = (*RS256Signer)(nil)

// NewRS256Signer parses a PEM encoded (PKCS1 or PKCS8) RSA private key.
func NewRS256Signer(privateKeyPEM []byte) (*RS256Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	return &RS256Signer{key: key}, nil
}

func (s *RS256Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	ss, err := token.SignedString(s.key)
	return ss, errors.Wrap(err, "signing assertion")
}

// DecodePrivateKey decodes the configured private key: base64 of a PEM whose newlines may be escaped as `\n`.
// A value that already is PEM is accepted as is, minus surrounding white space.
func DecodePrivateKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("private key is empty")
	}

	pem := s
	if !strings.HasPrefix(s, "-----BEGIN") {
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(err, "decoding base64 private key")
		}
		pem = string(raw)
	}
	return []byte(strings.ReplaceAll(pem, `\n`, "\n")), nil
}
