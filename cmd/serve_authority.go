package cmd

import (
	"github.com/nsyszr/eventbroker/pkg/cmd/server"
	"github.com/spf13/cobra"
)

// serveAuthorityCmd represents the serve authority command
var serveAuthorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Serve standalone token authority instance",
	Run:   server.RunServeAuthority(c),
}

func init() {
	serveCmd.AddCommand(serveAuthorityCmd)
}
