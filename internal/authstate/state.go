package authstate

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/florianilch/sociallogin/internal/provider"
)

// Grant types recorded on token errors.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantOAuth1AccessToken = "oauth1_access_token"
)

// ServiceConfig is the last known authorization service configuration.
type ServiceConfig struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
}

// AuthorizationRequest holds the artifacts of a pending authorization request.
type AuthorizationRequest struct {
	Provider             provider.Name     `json:"provider"`
	Config               ServiceConfig     `json:"configuration"`
	ClientID             string            `json:"client_id"`
	RedirectURI          string            `json:"redirect_uri"`
	Scope                string            `json:"scope,omitempty"`
	State                string            `json:"state,omitempty"`
	CodeVerifier         string            `json:"code_verifier,omitempty"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
}

// AuthorizationResponse is the result delivered to the redirect URI.
type AuthorizationResponse struct {
	Request              AuthorizationRequest `json:"request"`
	Code                 string               `json:"code,omitempty"`
	State                string               `json:"state,omitempty"`
	Scope                string               `json:"scope,omitempty"`
	AdditionalParameters map[string]string    `json:"additional_parameters,omitempty"`
}

// TokenResponse is a successful token endpoint response. TokenSecret is only
// set for OAuth1 access tokens.
type TokenResponse struct {
	AccessToken          string            `json:"access_token"`
	TokenSecret          string            `json:"token_secret,omitempty"`
	TokenType            string            `json:"token_type,omitempty"`
	RefreshToken         string            `json:"refresh_token,omitempty"`
	IDToken              string            `json:"id_token,omitempty"`
	Scope                string            `json:"scope,omitempty"`
	Expiry               time.Time         `json:"expiry,omitzero"`
	AdditionalParameters map[string]string `json:"additional_parameters,omitempty"`
}

// RegistrationResponse is a dynamic client registration result.
type RegistrationResponse struct {
	ClientID              string    `json:"client_id"`
	ClientSecret          string    `json:"client_secret,omitempty"`
	ClientSecretExpiresAt time.Time `json:"client_secret_expires_at,omitzero"`
}

// ErrorKind classifies an AuthError.
type ErrorKind string

const (
	ErrorKindAuthorization ErrorKind = "authorization"
	ErrorKindToken         ErrorKind = "token"
	ErrorKindRegistration  ErrorKind = "registration"
)

// AuthError is an OAuth error reported by the provider.
type AuthError struct {
	Kind        ErrorKind `json:"kind"`
	Grant       string    `json:"grant,omitempty"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
}

func (e *AuthError) Error() string {
	msg := string(e.Kind) + " error: " + e.Code
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// State is the authorization state of one provider session. Published states
// are never mutated; updates produce a new value.
type State struct {
	Provider                  provider.Name          `json:"provider,omitempty"`
	Config                    *ServiceConfig         `json:"configuration,omitempty"`
	LastAuthorizationResponse *AuthorizationResponse `json:"last_authorization_response,omitempty"`
	LastTokenResponse         *TokenResponse         `json:"last_token_response,omitempty"`
	LastRegistrationResponse  *RegistrationResponse  `json:"last_registration_response,omitempty"`
	RefreshToken              string                 `json:"refresh_token,omitempty"`
	Scope                     string                 `json:"scope,omitempty"`

	// Error is a terminal authorization or token failure. While set the state
	// exposes no credentials.
	Error *AuthError `json:"error,omitempty"`

	// RefreshError is the last failed refresh. Prior credentials stay usable.
	RefreshError *AuthError `json:"refresh_error,omitempty"`
}

// New returns an empty state.
func New() *State {
	return &State{}
}

// IsEmpty reports whether the state carries no session data at all.
func (s *State) IsEmpty() bool {
	return s.Provider == "" &&
		s.Config == nil &&
		s.LastAuthorizationResponse == nil &&
		s.LastTokenResponse == nil &&
		s.LastRegistrationResponse == nil &&
		s.RefreshToken == "" &&
		s.Scope == "" &&
		s.Error == nil &&
		s.RefreshError == nil
}

// AccessToken returns the current access token, or "" when there is none or a
// terminal error is recorded.
func (s *State) AccessToken() string {
	if s.Error != nil || s.LastTokenResponse == nil {
		return ""
	}
	return s.LastTokenResponse.AccessToken
}

// AccessTokenSecret returns the OAuth1 token secret paired with AccessToken.
func (s *State) AccessTokenSecret() string {
	if s.Error != nil || s.LastTokenResponse == nil {
		return ""
	}
	return s.LastTokenResponse.TokenSecret
}

// IDToken returns the OpenID Connect ID token, if any.
func (s *State) IDToken() string {
	if s.Error != nil || s.LastTokenResponse == nil {
		return ""
	}
	return s.LastTokenResponse.IDToken
}

// RefreshTokenValue returns the refresh token available for a refresh grant.
func (s *State) RefreshTokenValue() string {
	if s.Error != nil {
		return ""
	}
	return s.RefreshToken
}

// AccessTokenExpiry returns the access token expiry, zero when unknown.
func (s *State) AccessTokenExpiry() time.Time {
	if s.LastTokenResponse == nil {
		return time.Time{}
	}
	return s.LastTokenResponse.Expiry
}

// IsAuthorized reports whether the state holds usable credentials.
func (s *State) IsAuthorized() bool {
	return s.Error == nil && (s.AccessToken() != "" || s.IDToken() != "")
}

// NeedsTokenRefresh reports whether the access token is missing or expired at now.
func (s *State) NeedsTokenRefresh(now time.Time) bool {
	if s.AccessToken() == "" {
		return true
	}
	expiry := s.AccessTokenExpiry()
	return !expiry.IsZero() && !now.Before(expiry)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	if s.Config != nil {
		cfg := *s.Config
		c.Config = &cfg
	}
	if s.LastAuthorizationResponse != nil {
		r := *s.LastAuthorizationResponse
		r.AdditionalParameters = maps.Clone(r.AdditionalParameters)
		r.Request.AdditionalParameters = maps.Clone(r.Request.AdditionalParameters)
		c.LastAuthorizationResponse = &r
	}
	if s.LastTokenResponse != nil {
		r := *s.LastTokenResponse
		r.AdditionalParameters = maps.Clone(r.AdditionalParameters)
		c.LastTokenResponse = &r
	}
	if s.LastRegistrationResponse != nil {
		r := *s.LastRegistrationResponse
		c.LastRegistrationResponse = &r
	}
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.RefreshError != nil {
		e := *s.RefreshError
		c.RefreshError = &e
	}
	return &c
}

// WithAuthorization returns the state after an authorization result. Exactly
// one of resp and authErr should be set.
//
// A successful authorization adopts the request's provider and service
// configuration. Tokens of the same provider stay until the token endpoint
// answers, so a failed exchange leaves the prior session usable; switching
// provider drops them. An error is recorded and hides the remaining
// credentials.
func (s *State) WithAuthorization(resp *AuthorizationResponse, authErr *AuthError) *State {
	next := s.Clone()
	if authErr != nil {
		e := *authErr
		e.Kind = ErrorKindAuthorization
		next.Error = &e
		return next
	}
	if resp == nil {
		return next
	}

	r := *resp
	cfg := r.Request.Config
	if next.Provider != r.Request.Provider || next.Error != nil {
		next.LastTokenResponse = nil
		next.RefreshToken = ""
		next.RefreshError = nil
	}
	next.Provider = r.Request.Provider
	next.Config = &cfg
	next.LastAuthorizationResponse = &r
	next.Error = nil
	next.Scope = r.Scope
	if next.Scope == "" {
		next.Scope = r.Request.Scope
	}
	return next
}

// WithTokenResponse returns the state after a token endpoint result.
//
// A failed refresh keeps the prior credentials and only records RefreshError.
// Any other failed grant is terminal: the error is recorded and the token
// response and refresh token are cleared.
func (s *State) WithTokenResponse(resp *TokenResponse, authErr *AuthError) *State {
	next := s.Clone()
	if authErr != nil {
		e := *authErr
		e.Kind = ErrorKindToken
		if e.Grant == GrantRefreshToken {
			next.RefreshError = &e
			return next
		}
		next.Error = &e
		next.LastTokenResponse = nil
		next.RefreshToken = ""
		return next
	}
	if resp == nil {
		return next
	}

	r := *resp
	next.LastTokenResponse = &r
	next.Error = nil
	next.RefreshError = nil
	if r.Scope != "" {
		next.Scope = r.Scope
	}
	if r.RefreshToken != "" {
		next.RefreshToken = r.RefreshToken
	}
	return next
}

// WithRegistration returns the state after a successful client registration.
// Registration invalidates the previous authorization and tokens.
func (s *State) WithRegistration(resp *RegistrationResponse) *State {
	next := s.Clone()
	if resp == nil {
		return next
	}
	r := *resp
	next.LastRegistrationResponse = &r
	next.LastAuthorizationResponse = nil
	next.LastTokenResponse = nil
	next.RefreshToken = ""
	next.Error = nil
	next.RefreshError = nil
	return next
}

// Serialize encodes the state as JSON.
func (s *State) Serialize() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize decodes a state produced by Serialize.
func Deserialize(data string) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	return &s, nil
}
