// Package thinkgatecmder
package thinkgatecmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/thinkgate/cmd/thinkgate/chat"
	configcmder "github.com/papercomputeco/thinkgate/cmd/thinkgate/config"
	initcmder "github.com/papercomputeco/thinkgate/cmd/thinkgate/init"
	servecmder "github.com/papercomputeco/thinkgate/cmd/thinkgate/serve"
	versioncmder "github.com/papercomputeco/thinkgate/cmd/version"
)

const thinkgateLongDesc string = `Thinkgate splits a reasoning model's stream into reasoning and answer.

It sits between a chat client and an OpenAI-compatible streaming model server,
relays reasoning text as it is generated, summarizes every closed reasoning
region, and delivers the final answer on its own channel.

Run the gateway and talk to it using:
  thinkgate serve           Run the gateway server
  thinkgate chat <prompt>   Send a prompt through a running gateway`

const thinkgateShortDesc string = "Thinkgate - Reasoning Stream Gateway"

func NewThinkgateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "thinkgate",
		Short:         thinkgateShortDesc,
		Long:          thinkgateLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .thinkgate/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
