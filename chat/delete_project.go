package chat

import (
	"github.com/spf13/cobra"

	"github.com/bisacoding/bisacoding/internal/cli"
	"github.com/bisacoding/bisacoding/store"
)

// newDeleteCmd instantiates and returns the chat delete command.
func newDeleteCmd(s *store.Store) *cobra.Command {
	var opts struct {
		All bool
	}
	cmd := &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project, or all of them",
		Long:  "Delete the named project. With --all, wipe the whole collection.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if opts.All {
				if !cli.QueryUser("Permanently delete ALL projects?") {
					return
				}
				s.DeleteAll()
				cli.UserCommand("all projects deleted\n")
				return
			}

			if len(args) == 0 {
				cli.Error("specify a project id or --all\n")
				return
			}
			projectID := args[0]
			if !cli.QueryUser("Permanently delete this project?") {
				return
			}
			s.DeleteProject(projectID)
			cli.UserCommand("project %s deleted\n", projectID)
		},
	}
	cmd.Flags().BoolVar(&opts.All, "all", false, "delete every project")
	return cmd
}
