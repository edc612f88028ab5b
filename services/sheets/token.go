package sheets

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/anasaran05/learnsync/core"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// tokenSafetyMargin is cut from the token lifetime so a token never expires mid-request.
	tokenSafetyMargin = 60 * time.Second
	assertionLifetime = time.Hour
)

// AccessToken is a bearer token for the store API.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time // already reduced by the safety margin
}

func (t AccessToken) valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

type assertionClaims struct {
	jwt.StandardClaims
	Scope string `json:"scope"`
}

type TokenOptions struct {
	ServiceEmail string
	Scope        string
	TokenURL     string
	HTTPClient   *http.Client
}

// TokenProvider acquires and caches access tokens through a signed assertion exchange.
// Concurrent callers share a single exchange.
type TokenProvider struct {
	signer Signer
	opts   TokenOptions

	NowFunc func() time.Time // mockable

	mutex sync.Mutex
	token AccessToken
}

func NewTokenProvider(signer Signer, opts TokenOptions) *TokenProvider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenProvider{
		signer:  signer,
		opts:    opts,
		NowFunc: time.Now,
	}
}

// NewTokenProviderFromConfig builds the provider from the service identity settings.
func NewTokenProviderFromConfig(conf core.SheetsConfig, httpClient *http.Client) (*TokenProvider, error) {
	if conf.ServiceAccountEmail == "" || conf.PrivateKey == "" {
		return nil, core.NewAuthError("service identity credentials are missing", nil)
	}
	pem, err := DecodePrivateKey(conf.PrivateKey)
	if err != nil {
		return nil, core.NewAuthError("invalid service identity private key", err)
	}
	signer, err := NewRS256Signer(pem)
	if err != nil {
		return nil, core.NewAuthError("invalid service identity private key", err)
	}
	return NewTokenProvider(signer, TokenOptions{
		ServiceEmail: conf.ServiceAccountEmail,
		Scope:        conf.Scope,
		TokenURL:     conf.TokenURL,
		HTTPClient:   httpClient,
	}), nil
}

// Token returns the cached token if still valid, else exchanges a new assertion for one.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := p.NowFunc()
	if p.token.valid(now) {
		return p.token.Value, nil
	}

	token, err := p.exchange(ctx, now)
	if err != nil {
		return "", err
	}
	p.token = token
	return token.Value, nil
}

// Cached returns the currently cached token, which may be expired or empty.
func (p *TokenProvider) Cached() AccessToken {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.token
}

// Invalidate drops the cached token, e.g. after the store rejected it.
func (p *TokenProvider) Invalidate() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.token = AccessToken{}
}

// exchange must be called with p.mutex held.
func (p *TokenProvider) exchange(ctx context.Context, now time.Time) (AccessToken, error) {
	if p.signer == nil || p.opts.ServiceEmail == "" {
		return AccessToken{}, core.NewAuthError("service identity credentials are missing", nil)
	}

	assertion, err := p.signer.Sign(assertionClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    p.opts.ServiceEmail,
			Audience:  p.opts.TokenURL,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(assertionLifetime).Unix(),
		},
		Scope: p.opts.Scope,
	})
	if err != nil {
		return AccessToken{}, core.NewAuthError("signing assertion", err)
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeJWTBearer)
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, errors.Wrap(err, "creating token exchange request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return AccessToken{}, core.NewAuthError("token exchange request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return AccessToken{}, core.NewAuthError("reading token exchange response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, core.NewAuthError("token exchange rejected", errors.Errorf("http %d: %s", resp.StatusCode, upstreamMessage(body)))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err = json.Unmarshal(body, &result); err != nil {
		return AccessToken{}, core.NewAuthError("decoding token exchange response", err)
	}
	if result.AccessToken == "" {
		return AccessToken{}, core.NewAuthError("token exchange returned an empty token", nil)
	}

	return AccessToken{
		Value:     result.AccessToken,
		ExpiresAt: now.Add(time.Duration(result.ExpiresIn)*time.Second - tokenSafetyMargin),
	}, nil
}
