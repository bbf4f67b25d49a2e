package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/sociallogin/internal/app"
	"github.com/florianilch/sociallogin/internal/authstate"
	"github.com/florianilch/sociallogin/internal/flow"
	"github.com/florianilch/sociallogin/internal/observability"
	"github.com/florianilch/sociallogin/internal/provider"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "sociallogin",
		Usage: "Sign in with Google, Facebook or Twitter and keep the tokens fresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "telemetry exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigExporter),
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "auth state storage (file|keyring|sqlite)",
				Value: string(app.DefaultConfigStorage),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			statusCommand(),
			refreshCommand(),
			tokenCommand(),
			resetCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "sign in with a provider",
		ArgsUsage: "<" + providerList() + ">",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			name, err := providerArg(cmd)
			if err != nil {
				return err
			}
			outcome, err := application.Login(ctx, name, app.Terminal{In: reader(cmd), Out: cmd.Root().Writer})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			return report(cmd.Root().Writer, outcome)
		}),
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:      "refresh",
		Usage:     "redeem the stored refresh token",
		ArgsUsage: "<" + providerList() + ">",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			name, err := providerArg(cmd)
			if err != nil {
				return err
			}
			outcome, err := application.Refresh(ctx, name)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			return report(cmd.Root().Writer, outcome)
		}),
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "token",
		Usage:     "print a valid access token, refreshing it when expired",
		ArgsUsage: "<" + providerList() + ">",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			name, err := providerArg(cmd)
			if err != nil {
				return err
			}
			src, err := application.TokenSource(ctx, name)
			if err != nil {
				return err
			}
			tok, err := src.Token()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, tok.AccessToken)
			return err
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show the stored authorization state",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			printStatus(cmd.Root().Writer, application.Status(ctx), time.Now())
			return nil
		}),
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "forget all stored authorization data",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, application *app.App) error {
			if err := application.Reset(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.Root().Writer, "Signed out.")
			return err
		}),
	}
}

// withApp loads the configuration, sets up observability and opens the app
// around action.
func withApp(action func(context.Context, *cli.Command, *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(configPath(cmd), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, observability.Options{
			Level:    cfg.LogLevel.String(),
			Format:   observability.Format(cfg.LogFormat),
			Exporter: cfg.Telemetry.Exporter,
			Writer:   cmd.Root().ErrWriter,
		})
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown.Timeout)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				fmt.Fprintln(cmd.Root().ErrWriter, "telemetry shutdown:", err)
			}
		}()

		application, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}
		defer func() { _ = application.Close() }()

		return action(ctx, cmd, application)
	}
}

func configPath(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	return defaultConfigPath()
}

func providerArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", cli.Exit(fmt.Sprintf("usage: %s %s <%s>", cmd.Root().Name, cmd.Name, providerList()), 2)
	}
	return cmd.Args().First(), nil
}

func providerList() string {
	var list string
	for i, name := range provider.Names() {
		if i > 0 {
			list += "|"
		}
		list += string(name)
	}
	return list
}

func reader(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}

// report prints the outcome message. Anything but a grant is an exit error.
func report(w io.Writer, outcome flow.Outcome) error {
	if outcome.Status != flow.Granted {
		return cli.Exit(outcome.Message(), 1)
	}
	_, err := fmt.Fprintln(w, outcome.Message())
	return err
}

func printStatus(w io.Writer, st *authstate.State, now time.Time) {
	if st.IsEmpty() {
		fmt.Fprintln(w, "Not signed in.")
		return
	}

	fmt.Fprintf(w, "Provider:   %s\n", st.Provider.DisplayName())
	switch {
	case st.Error != nil:
		fmt.Fprintf(w, "Status:     failed (%s)\n", st.Error)
	case st.IsAuthorized():
		fmt.Fprintln(w, "Status:     signed in")
	default:
		fmt.Fprintln(w, "Status:     authorization pending")
	}
	if st.Scope != "" {
		fmt.Fprintf(w, "Scope:      %s\n", st.Scope)
	}
	if expiry := st.AccessTokenExpiry(); !expiry.IsZero() && st.IsAuthorized() {
		state := "valid"
		if st.NeedsTokenRefresh(now) {
			state = "expired"
		}
		fmt.Fprintf(w, "Expires:    %s (%s)\n", expiry.Local().Format(time.RFC3339), state)
	}
	if st.RefreshTokenValue() != "" {
		fmt.Fprintln(w, "Refresh:    available")
	}
	if st.RefreshError != nil {
		fmt.Fprintf(w, "Last refresh failed: %s\n", st.RefreshError)
	}
}
