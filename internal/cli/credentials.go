package cli

import (
	"errors"

	"github.com/mindfulsc/mindful/internal/auth"
	"github.com/spf13/cobra"
)

// addCredentialFlags registers --email and --password on cmd.
func addCredentialFlags(cmd *cobra.Command, email, password *string) {
	cmd.Flags().StringVarP(email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVar(password, "password", "", "account password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolvePassword returns the --password value or prompts for one on the
// terminal. Registration asks twice.
func resolvePassword(cmd *cobra.Command, given string, confirm bool) (string, error) {
	if given != "" {
		return given, nil
	}
	if cmd.Flags().Changed("password") {
		return "", auth.ErrEmptyPassword
	}
	if confirm {
		return auth.PromptAndConfirmPassword(cmd.ErrOrStderr())
	}
	return auth.PromptPassword(cmd.ErrOrStderr(), "Password: ")
}

var errNotLoggedIn = errors.New("not logged in")
