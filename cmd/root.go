package cmd

import (
	"github.com/spf13/cobra"
)

// New creates the root command with all subcommands registered.
func New() *cobra.Command {
	opts := &Options{}

	rootCmd := &cobra.Command{
		Use:   "scout",
		Short: "Good-first-issue scout for open-source contributors",
		Long: `A pipeline that scans GitHub repositories for newcomer-friendly
issues, analyzes each one with an LLM (difficulty, required skills,
summary, solution steps), and delivers the results to a Feishu channel.
Already-delivered issues are remembered and never pushed twice.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	// Add run flags to the root command so `scout` and `scout run` work
	// identically
	addRunFlags(rootCmd, opts)

	// Register subcommands
	rootCmd.AddCommand(NewCmdRun(opts))
	rootCmd.AddCommand(NewCmdConfig())
	rootCmd.AddCommand(NewCmdVersion())

	return rootCmd
}
