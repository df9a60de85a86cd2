package cmd

import (
	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a room by its code or share link.

Examples:
  warpcall join ABC123
  warpcall join https://warpcall.qzz.io/r/ABC123
  warpcall join ABC123 --name Bob --frame-policy drop`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := room.Parse(args[0])
		if err != nil {
			return call.NewError("parse room", err)
		}
		return runCall(cmd.Context(), code)
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
	addCallFlags(joinCmd)
}
