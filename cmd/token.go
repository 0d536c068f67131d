package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Request access tokens from the authority",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

var tokenAuthorizeCmd = &cobra.Command{
	Use:   "authorize <origin> <service-id>",
	Short: "Issue an access token for an origin and a service",
	Run:   cmdHandler.Token.Authorize,
}

var tokenRotateCmd = &cobra.Command{
	Use:   "rotate <plugin-id>",
	Short: "Rotate the access token of a plugin",
	Run:   cmdHandler.Token.Rotate,
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <origin>",
	Short: "Revoke all access tokens of an origin",
	Run:   cmdHandler.Token.Revoke,
}

func init() {
	tokenAuthorizeCmd.Flags().Duration("expires-in", 0, "lifetime of the token, 0 never expires")
	tokenCmd.AddCommand(tokenAuthorizeCmd)
	tokenCmd.AddCommand(tokenRotateCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
	RootCmd.AddCommand(tokenCmd)
}
