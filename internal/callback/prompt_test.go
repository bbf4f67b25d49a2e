package callback

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/florianilch/sociallogin/internal/flow"
)

func TestPromptAuthorize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, cb flow.Callback, err error)
	}{
		{
			name:  "pasted redirect",
			input: "http://127.0.0.1:8765/cb?code=code-1&state=s\n",
			check: func(t *testing.T, cb flow.Callback, err error) {
				if err != nil || cb.Query.Get("code") != "code-1" {
					t.Errorf("Authorize() = %v, %v", cb, err)
				}
			},
		},
		{
			name:  "without trailing newline",
			input: "http://127.0.0.1:8765/cb?oauth_token=ABC&oauth_verifier=VER",
			check: func(t *testing.T, cb flow.Callback, err error) {
				if err != nil || cb.Query.Get("oauth_verifier") != "VER" {
					t.Errorf("Authorize() = %v, %v", cb, err)
				}
			},
		},
		{
			name:  "empty line cancels",
			input: "\n",
			check: func(t *testing.T, cb flow.Callback, err error) {
				if !errors.Is(err, flow.ErrCancelled) {
					t.Errorf("err = %v, want ErrCancelled", err)
				}
			},
		},
		{
			name:  "foreign URL",
			input: "http://evil.example/cb?code=x\n",
			check: func(t *testing.T, cb flow.Callback, err error) {
				if err == nil {
					t.Error("accepted a URL for another redirect target")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompt(mustURL(t, "http://127.0.0.1:8765/cb"), strings.NewReader(tt.input), &out)

			cb, err := p.Authorize(context.Background(), flow.AuthorizationRequest{URL: "https://accounts.example/auth?x=1"})
			tt.check(t, cb, err)
			if !strings.Contains(out.String(), "https://accounts.example/auth?x=1") {
				t.Errorf("authorization URL not shown: %q", out.String())
			}
		})
	}
}
