// Package identity validates bearer tokens issued by the external identity provider.
// Its only contract is: valid token in, subject id out.
package identity

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

var errInvalidToken = core.NewAuthError("invalid or expired token", nil)

type Verifier interface {
	// Verify returns the subject the token was issued to.
	Verify(ctx context.Context, token string) (subject string, err error)
}

// RemoteVerifier asks the identity provider who the token belongs to.
type RemoteVerifier struct {
	endpoint   string
	httpClient *http.Client
}

var _ Verifier = (*RemoteVerifier)(nil)

func NewRemoteVerifier(endpoint string, httpClient *http.Client) *RemoteVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteVerifier{endpoint: endpoint, httpClient: httpClient}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating identity request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "identity request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", errInvalidToken
	case resp.StatusCode != http.StatusOK:
		body, _ := ioutil.ReadAll(resp.Body)
		return "", errors.Errorf("identity provider returned http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var who struct {
		ID  string `json:"id"`
		Sub string `json:"sub"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&who); err != nil {
		return "", errors.Wrap(err, "decoding identity response")
	}
	subject := who.ID
	if subject == "" {
		subject = who.Sub
	}
	if subject == "" {
		return "", errInvalidToken
	}
	return subject, nil
}

// JWTVerifier validates HS256 tokens signed with a secret shared with the identity provider.
type JWTVerifier struct {
	secret []byte
}

var _ Verifier = (*JWTVerifier)(nil)

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	claims := new(jwt.StandardClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// NewToken signs an HS256 token for subject, as the identity provider would.
func (v *JWTVerifier) NewToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	ss, err := token.SignedString(v.secret)
	return ss, errors.Wrap(err, "signing token")
}

// NewVerifier picks the verifier matching the configuration: a shared secret wins over the remote endpoint.
func NewVerifier(conf core.IdentityConfig) Verifier {
	if conf.JWTSecret != "" {
		return NewJWTVerifier([]byte(conf.JWTSecret))
	}
	return NewRemoteVerifier(conf.Endpoint, nil)
}
