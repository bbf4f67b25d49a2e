package callback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/florianilch/sociallogin/internal/flow"
)

// Prompt asks the user to paste the URL the provider redirected to. Input is
// hidden when reading from a terminal because the URL carries credentials.
type Prompt struct {
	redirect *url.URL
	opener   Opener
	in       io.Reader
	out      io.Writer
	reader   *bufio.Reader
}

// Compile-time check that Prompt implements flow.Authorizer
var _ flow.Authorizer = (*Prompt)(nil)

// NewPrompt creates a Prompt for redirect reading from in and writing to out.
func NewPrompt(redirect *url.URL, in io.Reader, out io.Writer) *Prompt {
	return &Prompt{
		redirect: redirect,
		opener:   PrintOpener{W: out},
		in:       in,
		out:      out,
		reader:   bufio.NewReader(in),
	}
}

// Authorize prints the authorization URL and reads the redirect back. An empty
// line cancels.
func (p *Prompt) Authorize(ctx context.Context, req flow.AuthorizationRequest) (flow.Callback, error) {
	if err := p.opener.Open(ctx, req.URL); err != nil {
		return flow.Callback{}, err
	}
	if _, err := fmt.Fprintf(p.out, "Paste the URL you were redirected to (empty to cancel): "); err != nil {
		return flow.Callback{}, err
	}

	type line struct {
		s   string
		err error
	}
	lines := make(chan line, 1)
	go func() {
		s, err := p.readLine()
		lines <- line{s, err}
	}()

	var l line
	select {
	case l = <-lines:
	case <-ctx.Done():
		return flow.Callback{}, ctx.Err()
	}
	// A final line without newline still counts
	if l.err != nil && !errors.Is(l.err, io.EOF) {
		return flow.Callback{}, fmt.Errorf("reading redirect URL: %w", l.err)
	}
	raw := strings.TrimSpace(l.s)
	if raw == "" {
		return flow.Callback{}, flow.ErrCancelled
	}
	return p.parse(raw)
}

func (p *Prompt) parse(raw string) (flow.Callback, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return flow.Callback{}, fmt.Errorf("parsing redirect URL: %w", err)
	}
	if u.Scheme != p.redirect.Scheme || u.Host != p.redirect.Host || u.Path != p.redirect.Path {
		return flow.Callback{}, fmt.Errorf("pasted URL does not match redirect URI %s", p.redirect)
	}
	return flow.Callback{Query: u.Query()}, nil
}

func (p *Prompt) readLine() (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.out)
		return string(b), err
	}
	return p.reader.ReadString('\n')
}
