package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Long: `Show the role of the stored session and where it is kept. Exits with
an error when no session is stored. The API is not contacted.`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := openClient(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sc.Close()

	s, err := sc.Session(cmd.Context())
	if err != nil {
		return err
	}
	if !s.Authenticated() {
		return errNotLoggedIn
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Role:    %s\n", s.Role)
	fmt.Fprintf(out, "Token:   %s\n", maskToken(s.Token))
	fmt.Fprintf(out, "API:     %s\n", sc.BaseURL())
	fmt.Fprintf(out, "Storage: %s (%s)\n", cfg.Client.Storage.Backend, cfg.Client.Storage.Path)
	return nil
}

// maskToken keeps the first and last four characters of a token.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
