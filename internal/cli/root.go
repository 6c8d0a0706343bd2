package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/restyle/pkg/buildinfo"
)

// SetVersion overrides the version information displayed by --version.
// Empty values keep what the build recorded.
func SetVersion(v, c, d string) {
	if v != "" {
		buildinfo.Version = v
	}
	if c != "" {
		buildinfo.Commit = c
	}
	if d != "" {
		buildinfo.Date = d
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
//
// The CLI logger is attached to every command's context and is available
// through loggerFromContext.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Restyle redesigns room photos in one click",
		Long: `Restyle applies a named interior style (Modern, Classic, Nordic, Japanese)
to a room photo and writes the result as a JPEG. It can also run as an HTTP
service with an upload, generate and download flow.`,
		Version:      buildinfo.Short(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a TOML config file")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.stylesCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
