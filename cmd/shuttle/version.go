package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/shuttle/internal/app"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the shuttle, rsync and fclones versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "shuttle %s\n", app.BuildVersionString(version, commit))

		a, ctx, done, err := setup(cmd)
		if err != nil {
			return err
		}
		defer done()

		for _, tool := range []struct {
			name    string
			version func() (string, error)
		}{
			{"rsync", func() (string, error) { return a.Rsync.Version(ctx) }},
			{"fclones", func() (string, error) { return a.Fclones.Version(ctx) }},
		} {
			v, err := tool.version()
			if err != nil {
				v = "not found"
			}
			fmt.Fprintf(out, "%-8s %s\n", tool.name, v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
