package cmd

import (
	"github.com/BioHazard786/warpcall/internal/call"
	"github.com/BioHazard786/warpcall/internal/room"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c", "new"},
	Short:   "Start a new room and join it",
	Long: `Generate a fresh room code, print its share link and join the call as host.

Examples:
  warpcall create
  warpcall create --name Alice
  warpcall create --force-relay --turn turn:turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := room.Generate()
		if err != nil {
			return call.NewError("create room", err)
		}
		return runCall(cmd.Context(), code)
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	addCallFlags(createCmd)
}
