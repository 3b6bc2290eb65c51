package chat

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bisacoding/bisacoding/internal/cli"
	"github.com/bisacoding/bisacoding/store"
)

// newListCmd instantiates and returns the chat list command.
func newListCmd(s *store.Store) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		Long:  "List all projects, newest first",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			// Headers.
			cli.Title("BISA CODING PROJECTS")

			for _, project := range s.Projects() {
				updatedAt := time.UnixMilli(project.UpdatedAt).Format("Jan 2, 2006 3:04 PM")
				cli.UserCommand("project (%s) - %s\n", project.ID, updatedAt)
				cli.UserInput("> %s\n", project.Title)
			}
		},
	}
	return cmd
}
