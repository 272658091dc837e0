package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/geochat/internal/credential"
	"github.com/spf13/cobra"
)

func newLoginCmd(load loader) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for the chat backend",
		Long:  "Store the bearer token used for the chat backend. Without --token the token is read from the first line of stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			raw := token
			if raw == "" {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				scanner.Buffer(make([]byte, 0, 4096), 64*1024)
				if scanner.Scan() {
					raw = scanner.Text()
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read token: %w", err)
				}
			}

			tok, err := credential.Static(strings.TrimSpace(raw)).Token(cmd.Context())
			switch {
			case errors.Is(err, credential.ErrExpired):
				return errors.New("token has expired")
			case err != nil:
				return errors.New("no token given")
			}

			if err := a.repo.PutCredential(cmd.Context(), credential.TokenKey, string(tok)); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Token stored")
			return err
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bearer token (reads stdin when empty)")

	return cmd
}

func newLogoutCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			if err := a.repo.DeleteCredential(cmd.Context(), credential.TokenKey); err != nil {
				return fmt.Errorf("delete token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Token removed")
			return err
		},
	}
}
