package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/florianilch/sociallogin/internal/app"
)

const testConfigTOML = `
log_format = "json"

[storage]
type = "file"
file = "%s"

[login]
timeout = "2m"

[providers.google]
client_id = "from-file"
authorization_scope = "openid email"
redirect_uri = "http://127.0.0.1:8765/oauth2redirect"
authorization_endpoint_uri = "https://accounts.google.com/o/oauth2/v2/auth"
token_endpoint_uri = "https://oauth2.googleapis.com/token"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Replace(testConfigTOML, "%s", filepath.ToSlash(filepath.Join(dir, "state.json")), 1)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t)

	cfg, err := loadConfig(path, nil, func() []string { return nil })
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.Login.Timeout != 2*time.Minute {
		t.Errorf("Login.Timeout = %v", cfg.Login.Timeout)
	}
	if cfg.HTTP.Timeout != app.DefaultConfigHTTPTimeout {
		t.Errorf("HTTP.Timeout = %v, want default", cfg.HTTP.Timeout)
	}
	if got := cfg.Providers["google"].ClientID; got != "from-file" {
		t.Errorf("google client_id = %q", got)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t)
	environ := func() []string {
		return []string{
			"SOCIALLOGIN_PROVIDERS__GOOGLE__CLIENT_ID=from-env",
			"SOCIALLOGIN_LOG_FORMAT=text",
			"UNRELATED=1",
		}
	}

	cfg, err := loadConfig(path, nil, environ)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got := cfg.Providers["google"].ClientID; got != "from-env" {
		t.Errorf("google client_id = %q, want from-env", got)
	}
	if cfg.LogFormat != app.LogFormatText {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if got := cfg.Providers["google"].AuthorizationScope; got != "openid email" {
		t.Errorf("authorization_scope = %q, want value kept from file", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		environ []string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    filepath.Join(t.TempDir(), "nope.toml"),
			wantErr: "does not exist",
		},
		{
			name:    "invalid storage type",
			environ: []string{"SOCIALLOGIN_STORAGE__TYPE=env", "SOCIALLOGIN_STORAGE__FILE=/tmp/x"},
			wantErr: "invalid config",
		},
		{
			name:    "unknown provider",
			environ: []string{"SOCIALLOGIN_PROVIDERS__MYSPACE__CLIENT_ID=x", "SOCIALLOGIN_PROVIDERS__MYSPACE__AUTHORIZATION_SCOPE=x", "SOCIALLOGIN_PROVIDERS__MYSPACE__REDIRECT_URI=http://127.0.0.1/cb", "SOCIALLOGIN_STORAGE__FILE=/tmp/x"},
			wantErr: "unsupported provider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.path, nil, func() []string { return tt.environ })
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("loadConfig() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
