package cmd

import (
	"github.com/nsyszr/eventbroker/pkg/cmd/server"
	"github.com/spf13/cobra"
)

// serveBrokerCmd represents the serve broker command
var serveBrokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Serve event broker instance",
	Run:   server.RunServeBroker(c),
}

func init() {
	serveCmd.AddCommand(serveBrokerCmd)
}
