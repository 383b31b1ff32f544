package config

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// ErrMissingCredentials is returned when the shop domain or token is not configured
var ErrMissingCredentials = errors.New(errors.ErrorTypeCredentials, "shop domain or access token not configured")

// Credentials are the resolved shop domain (hostname only) and access token
type Credentials struct {
	Domain string
	Token  string
}

// Valid reports whether both parts are present
func (c Credentials) Valid() bool {
	return c.Domain != "" && c.Token != ""
}

// CredentialSource resolves credentials at the moment a loader starts
type CredentialSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a fixed CredentialSource
type StaticCredentials Credentials

// Credentials implements CredentialSource
func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	c := Credentials{Domain: NormalizeShopDomain(s.Domain), Token: s.Token}
	if !c.Valid() {
		return c, ErrMissingCredentials
	}
	return c, nil
}

// NormalizeShopDomain strips the protocol and any trailing slash
func NormalizeShopDomain(raw string) string {
	d := strings.TrimSpace(raw)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}

// shopCredentials resolves a static token or exchanges client credentials for one
type shopCredentials struct {
	shop   ShopConfig
	client *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewCredentialSource returns the credential source for shop. An exchanged
// token is reused until it expires.
func NewCredentialSource(shop ShopConfig, client *http.Client) CredentialSource {
	return &shopCredentials{shop: shop, client: client}
}

// Credentials implements CredentialSource
func (s *shopCredentials) Credentials(ctx context.Context) (Credentials, error) {
	domain := NormalizeShopDomain(s.shop.URL)
	if domain == "" {
		return Credentials{}, ErrMissingCredentials
	}
	if s.shop.AccessToken != "" {
		return Credentials{Domain: domain, Token: s.shop.AccessToken}, nil
	}
	if s.shop.ClientID == "" || s.shop.ClientSecret == "" {
		return Credentials{Domain: domain}, ErrMissingCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token.Valid() {
		return Credentials{Domain: domain, Token: s.token.AccessToken}, nil
	}

	tokenURL := s.shop.TokenURL
	if tokenURL == "" {
		tokenURL = "https://" + domain + "/admin/oauth/access_token"
	}
	cc := clientcredentials.Config{
		ClientID:     s.shop.ClientID,
		ClientSecret: s.shop.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return Credentials{Domain: domain}, errors.Wrap(err, errors.ErrorTypeAuth, "client credentials exchange failed")
	}
	s.token = tok
	return Credentials{Domain: domain, Token: tok.AccessToken}, nil
}
