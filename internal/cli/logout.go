package cli

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Long: `Remove the stored token and role. No request is made to the API, and
running it again is harmless.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := openClient(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer sc.Close()

	return sc.Logout(cmd.Context())
}
