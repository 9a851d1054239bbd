package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentworkforce/notefs/internal/session"
	"github.com/agentworkforce/notefs/internal/snapi"
)

type signer interface {
	SignIn(ctx context.Context, email, password string, mfa map[string]string) (snapi.SignInResult, error)
}

func (a *app) loginCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			var err error
			if strings.TrimSpace(email) == "" {
				if email, err = prompt(in, out, "Email: "); err != nil {
					return err
				}
			}
			password, err := readSecret(cmd.InOrStdin(), in, out, "Password: ")
			if err != nil {
				return err
			}

			client := a.client("", "")
			result, err := signIn(cmd.Context(), client, email, password, func() (string, error) {
				return prompt(in, out, "Two-factor code: ")
			})
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer session.Close(store)
			if err := store.Save(&session.Session{
				Server:    a.cfg.Server.URL,
				Email:     strings.TrimSpace(email),
				Token:     result.Token,
				Version:   result.Version,
				MasterKey: result.Keys.MK,
				AuthKey:   result.Keys.AK,
				UpdatedAt: time.Now().UTC(),
			}); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			fmt.Fprintf(out, "Signed in as %s\n", strings.TrimSpace(email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", os.Getenv("NOTEFS_EMAIL"), "account email")
	return cmd
}

// signIn retries once with a two-factor code when the server asks for one.
func signIn(ctx context.Context, client signer, email, password string, askCode func() (string, error)) (snapi.SignInResult, error) {
	result, err := client.SignIn(ctx, email, password, nil)
	var mfaErr *snapi.MFARequiredError
	if !errors.As(err, &mfaErr) {
		return result, err
	}
	code, err := askCode()
	if err != nil {
		return snapi.SignInResult{}, err
	}
	return client.SignIn(ctx, email, password, map[string]string{mfaErr.Key: strings.TrimSpace(code)})
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(label), ":"), err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo when stdin is a terminal.
func readSecret(stdin io.Reader, in *bufio.Reader, out io.Writer, label string) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, label)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		return string(secret), err
	}
	return prompt(in, out, label)
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer session.Close(store)
			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
