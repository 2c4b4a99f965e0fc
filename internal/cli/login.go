package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Sign in to the mindful API. On success the token and role are kept in
local storage and sent with every later request.

Example:
  mindful login --email me@example.com
  mindful login --email me@example.com --storage sqlite`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	addCredentialFlags(loginCmd, &loginEmail, &loginPassword)
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, loginPassword, false)
	if err != nil {
		return err
	}

	sc, err := openClient(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sc.Close()

	token, err := sc.Login(cmd.Context(), loginEmail, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if token == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "The server returned no session; nothing was stored.")
		return nil
	}

	s, err := sc.Session(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s).\n", loginEmail, s.Role)
	return nil
}
