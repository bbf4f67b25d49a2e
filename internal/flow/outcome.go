package flow

import (
	"errors"
	"fmt"

	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/provider"
)

// Status is how a login attempt ended.
type Status int

const (
	Granted Status = iota + 1
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the single result of a login or refresh attempt. Credentials are
// only set when Status is Granted; Err is only set when Status is Failed.
type Outcome struct {
	Status   Status
	Provider provider.Name

	AccessToken       string
	AccessTokenSecret string
	RefreshToken      string
	IDToken           string

	Err error
}

func granted(name provider.Name, st *authstate.State) Outcome {
	return Outcome{
		Status:            Granted,
		Provider:          name,
		AccessToken:       st.AccessToken(),
		AccessTokenSecret: st.AccessTokenSecret(),
		RefreshToken:      st.RefreshTokenValue(),
		IDToken:           st.IDToken(),
	}
}

func cancelled(name provider.Name) Outcome {
	return Outcome{Status: Cancelled, Provider: name}
}

func failed(name provider.Name, err error) Outcome {
	return Outcome{Status: Failed, Provider: name, Err: err}
}

// Message returns the one notification shown to the user for this outcome.
func (o Outcome) Message() string {
	switch o.Status {
	case Granted:
		return fmt.Sprintf("Signed in with %s.", o.Provider.DisplayName())
	case Cancelled:
		return "Authorization canceled"
	}

	var netErr *NetworkError
	if errors.As(o.Err, &netErr) {
		return fmt.Sprintf("Network error: We couldn't connect to %s, try again.", o.Provider.DisplayName())
	}
	var authErr *authstate.AuthError
	if errors.As(o.Err, &authErr) {
		if authErr.Description != "" {
			return fmt.Sprintf("Authorization failed: %s", authErr.Description)
		}
		return fmt.Sprintf("Authorization failed: %s", authErr.Code)
	}
	if o.Err != nil {
		return fmt.Sprintf("Authorization failed: %v", o.Err)
	}
	return "Authorization failed"
}
