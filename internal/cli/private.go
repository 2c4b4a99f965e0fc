package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var privateCmd = &cobra.Command{
	Use:   "private",
	Short: "Fetch the protected resource",
	Long: `Fetch the protected resource with the stored session and print the
response body. If the API rejects the session it is cleared locally.`,
	Args: cobra.NoArgs,
	RunE: runPrivate,
}

func init() {
	rootCmd.AddCommand(privateCmd)
}

func runPrivate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sc, err := openClient(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sc.Close()

	resp, err := sc.FetchPrivate(cmd.Context())
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, resp.Body, "", "  ") == nil {
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
	return nil
}
