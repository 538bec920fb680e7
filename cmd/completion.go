package cmd

import (
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/config"
	"github.com/kernel/sfexplain/internal/page"
	"github.com/kernel/sfexplain/internal/ui"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish]",
	Short: "Generate shell completion scripts",
	Long: `Generate a completion script for sfexplain. Besides commands and flags it
completes --kind with the explainable page kinds, --format with the output
formats and the keys accepted by "sfexplain config set".

Bash:
  $ source <(sfexplain completion bash)

Zsh:
  $ sfexplain completion zsh > "${fpath[1]}/_sfexplain"

Fish:
  $ sfexplain completion fish > ~/.config/fish/completions/sfexplain.fish

Open a new shell afterwards, then try "sfexplain explain --kind <TAB>".
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// kindSlugs lists the --kind values a command accepts. The local command
// cannot read flows from disk.
func kindSlugs(withFlow bool) []string {
	kinds := page.Kinds
	if !withFlow {
		kinds = lo.Without(kinds, page.Flow)
	}
	return lo.Map(kinds, func(k page.Kind, _ int) string { return k.Slug() })
}

func formatNames() []string {
	return lo.Map(ui.Formats, func(f ui.Format, _ int) string { return string(f) })
}

func configKeys() []string {
	return lo.Map(config.Default().Entries(), func(e config.Entry, _ int) string { return e.Key })
}

type completionFunc = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective)

func fixedCompletion(values []string) completionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

// registerCompletions attaches value completion to flags and arguments. It
// runs after every command file's init has defined its flags.
func registerCompletions() {
	for _, c := range []*cobra.Command{explainCmd, obfuscateCmd} {
		_ = c.RegisterFlagCompletionFunc("kind", fixedCompletion(kindSlugs(true)))
	}
	_ = localCmd.RegisterFlagCompletionFunc("kind", fixedCompletion(kindSlugs(false)))
	for _, c := range []*cobra.Command{explainCmd, localCmd} {
		_ = c.RegisterFlagCompletionFunc("format", fixedCompletion(formatNames()))
	}

	configSetCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return configKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
