package oauth1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the Twitter REST API root hosting the OAuth1 endpoints.
const DefaultBaseURL = "https://api.twitter.com"

const (
	requestTokenPath = "/oauth/request_token"
	accessTokenPath  = "/oauth/access_token"

	// maxResponseBytes bounds token response bodies, which are a few hundred bytes.
	maxResponseBytes = 64 << 10
)

// RequestToken is the temporary credential returned by the first leg.
type RequestToken struct {
	Token             string
	Secret            string
	CallbackConfirmed bool
}

// AccessToken is the token credential returned by the last leg.
type AccessToken struct {
	Token      string
	Secret     string
	UserID     string
	ScreenName string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client performs the signed request-token and access-token calls.
type Client struct {
	signer     *Signer
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client that signs requests with signer.
func NewClient(signer *Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil {
		return nil, fmt.Errorf("missing signer")
	}
	c := &Client{
		signer:     signer,
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RequestToken obtains a request token.
func (c *Client) RequestToken(ctx context.Context) (RequestToken, error) {
	values, err := c.post(ctx, requestTokenPath, nil, "")
	if err != nil {
		return RequestToken{}, err
	}

	token, secret, err := tokenPair(requestTokenPath, values)
	if err != nil {
		return RequestToken{}, err
	}

	return RequestToken{
		Token:             token,
		Secret:            secret,
		CallbackConfirmed: values.Get("oauth_callback_confirmed") == "true",
	}, nil
}

// AccessToken exchanges an authorized request token and its verifier for an
// access token.
func (c *Client) AccessToken(ctx context.Context, rt RequestToken, verifier string) (AccessToken, error) {
	extra := map[string]string{
		"oauth_token":    rt.Token,
		"oauth_verifier": verifier,
	}
	values, err := c.post(ctx, accessTokenPath, extra, rt.Secret)
	if err != nil {
		return AccessToken{}, err
	}

	token, secret, err := tokenPair(accessTokenPath, values)
	if err != nil {
		return AccessToken{}, err
	}

	return AccessToken{
		Token:      token,
		Secret:     secret,
		UserID:     values.Get("user_id"),
		ScreenName: values.Get("screen_name"),
	}, nil
}

// AccessTokenURL returns the endpoint of the access-token leg.
func (c *Client) AccessTokenURL() string {
	return c.baseURL + accessTokenPath
}

// AuthorizeURL returns the consent page URL for a request token.
func AuthorizeURL(endpoint *url.URL, requestToken string) string {
	u := *endpoint
	q := u.Query()
	q.Set("oauth_token", requestToken)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) post(ctx context.Context, path string, extra map[string]string, tokenSecret string) (url.Values, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Authorization", c.signer.Sign(http.MethodPost, endpoint, extra, tokenSecret))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Endpoint: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{Endpoint: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{Endpoint: path, StatusCode: resp.StatusCode, Reason: "unexpected status", Body: excerpt(body)}
	}

	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, &ProtocolError{Endpoint: path, StatusCode: resp.StatusCode, Reason: "unparseable body", Body: excerpt(body)}
	}
	return values, nil
}

func tokenPair(path string, values url.Values) (string, string, error) {
	token := values.Get("oauth_token")
	if token == "" {
		return "", "", &ProtocolError{Endpoint: path, StatusCode: http.StatusOK, Reason: "missing oauth_token"}
	}
	secret := values.Get("oauth_token_secret")
	if secret == "" {
		return "", "", &ProtocolError{Endpoint: path, StatusCode: http.StatusOK, Reason: "missing oauth_token_secret"}
	}
	return token, secret, nil
}

func excerpt(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
