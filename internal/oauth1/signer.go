package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SignatureMethod = "HMAC-SHA1"
	Version         = "1.0"
)

// oauthReplacer patches form encoding into RFC3986 percent-encoding.
var oauthReplacer = strings.NewReplacer(
	"+", "%20",
	"*", "%2A",
	"%7E", "~",
)

// PercentEncode encodes s as OAuth1 requires: form encoding with spaces as %20,
// '*' escaped and '~' left alone.
func PercentEncode(s string) string {
	return oauthReplacer.Replace(url.QueryEscape(s))
}

// Param is a single OAuth parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered parameter list. Setting an existing key
// replaces its value in place.
type Params []Param

// Set adds or replaces key.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: value})
}

// Get returns the value of key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// BaseString builds the signature base string. Parameters are sorted by their
// encoded "key=value" form using byte order.
func BaseString(method, endpoint string, params Params) string {
	pairs := make([]string, 0, len(params))
	for _, kv := range params {
		pairs = append(pairs, PercentEncode(kv.Key)+"="+PercentEncode(kv.Value))
	}
	slices.Sort(pairs)

	return strings.ToUpper(method) + "&" + PercentEncode(endpoint) + "&" + PercentEncode(strings.Join(pairs, "&"))
}

// SigningKey joins the encoded secrets. An empty token secret still leaves the
// trailing '&'.
func SigningKey(consumerSecret, tokenSecret string) string {
	return PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
}

// Signature computes the base64 HMAC-SHA1 signature of the request.
func Signature(method, endpoint string, params Params, consumerSecret, tokenSecret string) string {
	mac := hmac.New(sha1.New, []byte(SigningKey(consumerSecret, tokenSecret)))
	mac.Write([]byte(BaseString(method, endpoint, params)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Header renders params as an Authorization header value, keeping their order.
func Header(params Params) string {
	values := make([]string, 0, len(params))
	for _, kv := range params {
		values = append(values, PercentEncode(kv.Key)+`="`+PercentEncode(kv.Value)+`"`)
	}
	return "OAuth " + strings.Join(values, ", ")
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// WithNonce overrides the nonce source.
func WithNonce(nonce func() string) SignerOption {
	return func(s *Signer) {
		s.nonce = nonce
	}
}

// Signer produces OAuth1.0a Authorization headers for one consumer.
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
	Callback       string

	now   func() time.Time
	nonce func() string
}

// NewSigner creates a Signer for the given consumer credentials and callback.
func NewSigner(consumerKey, consumerSecret, callback string, opts ...SignerOption) *Signer {
	s := &Signer{
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		Callback:       callback,
		now:            time.Now,
		nonce:          newNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params returns the protocol parameters for one request, merged with extra.
// Extra parameters are applied in key order and overwrite on collision.
func (s *Signer) Params(extra map[string]string) Params {
	params := Params{
		{Key: "oauth_callback", Value: s.Callback},
		{Key: "oauth_consumer_key", Value: s.ConsumerKey},
		{Key: "oauth_nonce", Value: s.nonce()},
		{Key: "oauth_signature_method", Value: SignatureMethod},
		{Key: "oauth_timestamp", Value: strconv.FormatInt(s.now().Unix(), 10)},
		{Key: "oauth_version", Value: Version},
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		params.Set(k, extra[k])
	}
	return params
}

// Sign returns the Authorization header for a request to endpoint.
func (s *Signer) Sign(method, endpoint string, extra map[string]string, tokenSecret string) string {
	params := s.Params(extra)
	params.Set("oauth_signature", Signature(method, endpoint, params, s.ConsumerSecret, tokenSecret))
	return Header(params)
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
