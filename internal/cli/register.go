package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	registerEmail    string
	registerPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account on the mindful API. The local session is not
changed; run 'mindful login' afterwards.

Example:
  mindful register --email me@example.com`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func init() {
	addCredentialFlags(registerCmd, &registerEmail, &registerPassword)
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	password, err := resolvePassword(cmd, registerPassword, true)
	if err != nil {
		return err
	}

	sc, err := openClient(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sc.Close()

	resp, err := sc.Register(cmd.Context(), registerEmail, password)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	var account struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := resp.Decode(&account); err != nil || account.Email == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s.\n", registerEmail)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s).\n", account.Email, account.Role)
	return nil
}
