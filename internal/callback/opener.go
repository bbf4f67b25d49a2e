package callback

import (
	"context"
	"fmt"
	"io"
)

// Opener shows an authorization URL to the user.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) error

func (f OpenerFunc) Open(ctx context.Context, url string) error {
	return f(ctx, url)
}

// PrintOpener writes the URL to W and asks the user to open it.
type PrintOpener struct {
	W io.Writer
}

func (o PrintOpener) Open(_ context.Context, url string) error {
	_, err := fmt.Fprintf(o.W, "Open the following URL in your browser to sign in:\n\n  %s\n\n", url)
	return err
}
