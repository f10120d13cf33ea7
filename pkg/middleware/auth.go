package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/Suhaibinator/SLayer/pkg/common"
	"github.com/Suhaibinator/SLayer/pkg/httpctx"
	"github.com/Suhaibinator/SLayer/pkg/httperr"
	"go.uber.org/zap"
)

// UserIDKey is the state key holding the authenticated user's ID.
// It is set by AuthenticationWithUser when an ID function is supplied, and
// read by the "user" rate limit strategy.
var UserIDKey = httpctx.NewKey[string]("user_id")

// AuthProvider defines an interface for authentication providers.
// The framework includes BasicAuthProvider, BearerTokenProvider and
// APIKeyProvider.
type AuthProvider interface {
	// Authenticate returns true if the request carries valid credentials.
	Authenticate(c *httpctx.Context) bool
}

// BasicAuthProvider provides HTTP Basic Authentication.
// It validates username and password credentials against a predefined map.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
}

// Authenticate authenticates a request using HTTP Basic Authentication.
func (p *BasicAuthProvider) Authenticate(c *httpctx.Context) bool {
	username, password, ok := c.Request.Raw().BasicAuth()
	if !ok {
		return false
	}

	expectedPassword, exists := p.Credentials[username]
	if !exists {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(password), []byte(expectedPassword)) == 1
}

// BearerTokenProvider provides Bearer Token Authentication.
// It can validate tokens against a predefined map or using a custom validator function.
type BearerTokenProvider struct {
	ValidTokens map[string]bool         // token -> valid
	Validator   func(token string) bool // optional token validator
}

// Authenticate authenticates a request using Bearer Token Authentication.
// The validator is used when set, otherwise the ValidTokens map.
func (p *BearerTokenProvider) Authenticate(c *httpctx.Context) bool {
	token, ok := bearerToken(c)
	if !ok {
		return false
	}

	if p.Validator != nil {
		return p.Validator(token)
	}
	return p.ValidTokens[token]
}

// APIKeyProvider provides API Key Authentication.
// It can validate API keys provided in a header or query parameter.
type APIKeyProvider struct {
	ValidKeys map[string]bool // key -> valid
	Header    string          // header name (e.g., "X-API-Key")
	Query     string          // query parameter name (e.g., "api_key")
}

// Authenticate checks the configured header, then the query parameter.
func (p *APIKeyProvider) Authenticate(c *httpctx.Context) bool {
	if p.Header != "" {
		if key := c.Get(p.Header); key != "" && p.ValidKeys[key] {
			return true
		}
	}
	if p.Query != "" {
		if key := c.Request.Query().Get(p.Query); key != "" && p.ValidKeys[key] {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(c *httpctx.Context) (string, bool) {
	authHeader := c.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return token, token != ""
}

// challenger is implemented by providers that advertise a WWW-Authenticate challenge.
type challenger interface {
	Challenge() string
}

// Challenge returns the WWW-Authenticate challenge for Basic authentication.
func (p *BasicAuthProvider) Challenge() string {
	return `Basic realm="Restricted"`
}

// Challenge returns the WWW-Authenticate challenge for bearer tokens.
func (p *BearerTokenProvider) Challenge() string {
	return "Bearer"
}

// AuthenticationWithProvider is a middleware that checks if a request is
// authenticated using the provided auth provider. Unauthenticated requests
// fail with 401 Unauthorized and never reach downstream middleware.
func AuthenticationWithProvider(provider AuthProvider, logger *zap.Logger) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		if !provider.Authenticate(c) {
			logger.Warn("Authentication failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			var opts []httperr.Option
			if ch, ok := provider.(challenger); ok {
				opts = append(opts, httperr.WithHeader("WWW-Authenticate", ch.Challenge()))
			}
			return httperr.New(http.StatusUnauthorized, "", opts...)
		}
		return next()
	}
}

// Authentication checks requests with a simple auth function.
func Authentication(authFunc func(c *httpctx.Context) bool) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		if !authFunc(c) {
			return httperr.New(http.StatusUnauthorized, "")
		}
		return next()
	}
}

// NewBasicAuthMiddleware creates a middleware that uses HTTP Basic Authentication.
func NewBasicAuthMiddleware(credentials map[string]string, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&BasicAuthProvider{Credentials: credentials}, logger)
}

// NewBearerTokenMiddleware creates a middleware that uses Bearer Token Authentication.
func NewBearerTokenMiddleware(validTokens map[string]bool, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&BearerTokenProvider{ValidTokens: validTokens}, logger)
}

// NewBearerTokenValidatorMiddleware creates a middleware that uses Bearer Token
// Authentication with a custom validator function, such as JWT validation.
func NewBearerTokenValidatorMiddleware(validator func(string) bool, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&BearerTokenProvider{Validator: validator}, logger)
}

// NewAPIKeyMiddleware creates a middleware that uses API Key Authentication.
func NewAPIKeyMiddleware(validKeys map[string]bool, header, query string, logger *zap.Logger) Middleware {
	return AuthenticationWithProvider(&APIKeyProvider{ValidKeys: validKeys, Header: header, Query: query}, logger)
}

// UserAuthProvider defines an interface for authentication providers that
// return a user object.
type UserAuthProvider[T any] interface {
	// AuthenticateUser returns the user for the request's credentials, or an error.
	AuthenticateUser(c *httpctx.Context) (*T, error)
}

// BasicUserAuthProvider provides HTTP Basic Authentication with user object return.
type BasicUserAuthProvider[T any] struct {
	GetUserFunc func(username, password string) (*T, error)
}

// AuthenticateUser resolves the user from Basic credentials.
func (p *BasicUserAuthProvider[T]) AuthenticateUser(c *httpctx.Context) (*T, error) {
	username, password, ok := c.Request.Raw().BasicAuth()
	if !ok {
		return nil, errors.New("no basic auth credentials")
	}
	return p.GetUserFunc(username, password)
}

// BearerTokenUserAuthProvider provides Bearer Token Authentication with user object return.
type BearerTokenUserAuthProvider[T any] struct {
	GetUserFunc func(token string) (*T, error)
}

// AuthenticateUser resolves the user from a bearer token.
func (p *BearerTokenUserAuthProvider[T]) AuthenticateUser(c *httpctx.Context) (*T, error) {
	token, ok := bearerToken(c)
	if !ok {
		return nil, errors.New("invalid authorization header format")
	}
	return p.GetUserFunc(token)
}

// APIKeyUserAuthProvider provides API Key Authentication with user object return.
type APIKeyUserAuthProvider[T any] struct {
	GetUserFunc func(key string) (*T, error)
	Header      string // header name (e.g., "X-API-Key")
	Query       string // query parameter name (e.g., "api_key")
}

// AuthenticateUser resolves the user from an API key in the header or query.
func (p *APIKeyUserAuthProvider[T]) AuthenticateUser(c *httpctx.Context) (*T, error) {
	if p.Header != "" {
		if key := c.Get(p.Header); key != "" {
			return p.GetUserFunc(key)
		}
	}
	if p.Query != "" {
		if key := c.Request.Query().Get(p.Query); key != "" {
			return p.GetUserFunc(key)
		}
	}
	return nil, errors.New("no API key found")
}

// AuthenticationWithUser authenticates requests with provider and stores the
// user under key. When userID is non-nil the user's ID is also stored under
// UserIDKey.
func AuthenticationWithUser[T any](provider UserAuthProvider[T], key httpctx.Key[*T], userID func(*T) string, logger *zap.Logger) Middleware {
	return func(c *httpctx.Context, next common.Next) error {
		user, err := provider.AuthenticateUser(c)
		if err != nil || user == nil {
			logger.Warn("Authentication failed",
				zap.Error(err),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return httperr.New(http.StatusUnauthorized, "", httperr.WithCause(err))
		}

		httpctx.SetState(c, key, user)
		if userID != nil {
			httpctx.SetState(c, UserIDKey, userID(user))
		}
		return next()
	}
}
