package flow

// Phase is a step of a login attempt.
type Phase int

const (
	Idle Phase = iota
	ConfigResolved
	RequestTokenRequested
	RequestTokenReceived
	AuthorizationRequested
	AuthorizationReceived
	VerifierReceived
	TokenExchangeRequested
	AccessTokenRequested
	Completed
)

var phaseNames = [...]string{
	Idle:                   "idle",
	ConfigResolved:         "config_resolved",
	RequestTokenRequested:  "request_token_requested",
	RequestTokenReceived:   "request_token_received",
	AuthorizationRequested: "authorization_requested",
	AuthorizationReceived:  "authorization_received",
	VerifierReceived:       "verifier_received",
	TokenExchangeRequested: "token_exchange_requested",
	AccessTokenRequested:   "access_token_requested",
	Completed:              "completed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}
