// Package cli implements the perplexity-mcp command line: the server itself
// plus the validate, ask and history helpers.
package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRootCmd builds the command tree for args (normally os.Args[1:]). Run
// without a subcommand it serves MCP. The raw args are kept because mode
// selection looks at arguments a launcher may pass that are not flags of
// this program, such as --args=... from an inspector. Cobra drops those.
func NewRootCmd(version string, args []string) *cobra.Command {
	rawArgs := slices.Clone(args)

	root := &cobra.Command{
		Use:   "perplexity-mcp",
		Short: "MCP server exposing the Perplexity chat completions API",
		Long: "perplexity-mcp serves the perplexity-chat tool over the Model Context Protocol, " +
			"either on stdin/stdout or over Server-Sent Events.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		FParseErrWhitelist: cobra.FParseErrWhitelist{
			UnknownFlags: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version, launcherArgs(cmd.Flags(), rawArgs))
		},
	}

	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().Bool("quiet", false, "Suppress all log output except errors")
	root.PersistentFlags().String("config", "", "Path to config file (default: ./perplexity-mcp.yaml, then ~/.perplexity-mcp/config.yaml)")
	addServeFlags(root)

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("perplexity-mcp version %s\n", version))

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewAskCmd())
	root.AddCommand(NewHistoryCmd())

	root.SetArgs(args)
	return root
}

// launcherArgs returns the arguments in args that are not flags of this
// program or their values: positionals and unknown flags.
func launcherArgs(flags *pflag.FlagSet, args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i+1:]...)
		}

		var flag *pflag.Flag
		inline := false
		switch {
		case strings.HasPrefix(arg, "--"):
			name, _, hasValue := strings.Cut(arg[2:], "=")
			flag, inline = flags.Lookup(name), hasValue
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			flag, inline = flags.ShorthandLookup(arg[1:2]), len(arg) > 2
		}
		if flag == nil {
			out = append(out, arg)
			continue
		}
		// A value flag without an inline value consumes the next argument.
		if !inline && flag.NoOptDefVal == "" {
			i++
		}
	}
	return out
}
