package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/oauthkeeper/internal/app"
	"github.com/florianilch/oauthkeeper/internal/kvstore"
	"github.com/florianilch/oauthkeeper/internal/tokenmanager"
)

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "exchange the stored refresh token for a new access token",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			grant, err := m.RefreshToken(ctx)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "access token refreshed, expires %s\n", grant.AccessExpires)
			return err
		}),
	}
}

func confirmCommand() *cli.Command {
	return &cli.Command{
		Name:  "confirm",
		Usage: "refresh the access token only if it is expired",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			if err := m.ConfirmAccess(ctx); err != nil {
				return fmt.Errorf("confirm access failed: %w", err)
			}
			expires, err := m.AccessExpires(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "access token valid, expires %s\n", expires)
			return err
		}),
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token, refreshing it first if needed",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			if err := m.ConfirmAccess(ctx); err != nil {
				return fmt.Errorf("confirm access failed: %w", err)
			}
			access, err := m.Access(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, access)
			return err
		}),
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "generate an authorization state value and store it",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "state--length",
				Usage: "number of characters",
			},
			&cli.BoolFlag{
				Name:  "print-only",
				Usage: "print the value without storing it",
			},
		},
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, cfg *app.Config, m *tokenmanager.Manager) error {
			state, err := m.GenerateState(cfg.State.Length)
			if err != nil {
				return err
			}
			if !cmd.Bool("print-only") {
				if err := m.SetState(ctx, state); err != nil {
					return fmt.Errorf("storing state: %w", err)
				}
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, state)
			return err
		}),
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "print a stored value",
		ArgsUsage: "<field>",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			field, err := fieldArg(cmd)
			if err != nil {
				return err
			}
			value, err := m.Get(ctx, field)
			if errors.Is(err, kvstore.ErrNotFound) {
				return fmt.Errorf("%s is not set", field)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, value)
			return err
		}),
	}
}

func setCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "store a value (read from stdin when omitted)",
		ArgsUsage: "<field> [value]",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			field, err := fieldArg(cmd)
			if err != nil {
				return err
			}

			value := cmd.Args().Get(1)
			if cmd.Args().Len() < 2 {
				value, err = readValue(cmd.Root().Reader, cmd.Root().ErrWriter, field)
				if err != nil {
					return err
				}
			}

			if err := m.Set(ctx, field, value); err != nil {
				return fmt.Errorf("storing %s: %w", field, err)
			}
			return nil
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show stored values with credentials masked",
		Action: managerAction(func(ctx context.Context, cmd *cli.Command, _ *app.Config, m *tokenmanager.Manager) error {
			table := tablewriter.NewWriter(cmd.Root().Writer)
			table.SetHeader([]string{"Field", "Value"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAutoWrapText(false)

			for _, field := range tokenmanager.Fields {
				value, err := m.Get(ctx, field)
				switch {
				case errors.Is(err, kvstore.ErrNotFound):
					value = "(unset)"
				case err != nil:
					return fmt.Errorf("reading %s: %w", field, err)
				case field.Secret():
					value = mask(value)
				}
				table.Append([]string{string(field), value})
			}

			expired, err := m.Expired(ctx)
			if err != nil {
				return err
			}
			table.Append([]string{"expired", fmt.Sprintf("%t", expired)})

			table.Render()
			return nil
		}),
	}
}

func fieldArg(cmd *cli.Command) (tokenmanager.Field, error) {
	if cmd.Args().Len() < 1 {
		names := make([]string, len(tokenmanager.Fields))
		for i, f := range tokenmanager.Fields {
			names[i] = string(f)
		}
		return "", fmt.Errorf("field required, one of: %s", strings.Join(names, ", "))
	}
	return tokenmanager.ParseField(cmd.Args().First())
}

// readValue prompts without echo on a terminal and otherwise reads r to EOF.
func readValue(r io.Reader, prompt io.Writer, field tokenmanager.Field) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "%s: ", field)
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", field, err)
		}
		return strings.TrimSpace(string(value)), nil
	}

	value, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", field, err)
	}
	return strings.TrimRight(string(value), "\r\n"), nil
}

func mask(value string) string {
	if value == "" {
		return "(empty)"
	}
	return fmt.Sprintf("******** (%d chars)", len(value))
}
