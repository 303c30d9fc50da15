package app

import "github.com/spf13/cobra"

// Open builds the App for a command, honoring the persistent --debug and
// --log-format flags when the command has them.
func Open(cmd *cobra.Command) (*App, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	format, _ := cmd.Flags().GetString("log-format")
	return New(Options{
		Debug:     debug,
		LogFormat: format,
		Stderr:    cmd.ErrOrStderr(),
	})
}
