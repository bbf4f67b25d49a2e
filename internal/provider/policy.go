package provider

// Protocol is the authorization protocol family a provider speaks.
type Protocol string

const (
	OAuth2 Protocol = "oauth2"
	OAuth1 Protocol = "oauth1"
)

// Policy captures the per-provider differences that are not protocol branches.
type Policy struct {
	Protocol Protocol

	// RequiresSecret marks providers that need the pre-shared client secret in
	// the token request (OAuth2) or for request signing (OAuth1).
	RequiresSecret bool
	SecretParam    string
}

var policies = map[Name]Policy{
	Google:   {Protocol: OAuth2},
	Facebook: {Protocol: OAuth2, RequiresSecret: true, SecretParam: "client_secret"},
	Twitter:  {Protocol: OAuth1, RequiresSecret: true, SecretParam: "client_secret"},
}

// PolicyFor returns the policy of the named provider. Unknown providers get the
// zero Policy.
func PolicyFor(name Name) Policy {
	return policies[name]
}
