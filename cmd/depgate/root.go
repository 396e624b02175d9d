// Package depgate provides the CLI commands for the depgate tool.
package depgate

import (
	"fmt"
	"log/slog"

	"chainguard.dev/apko/pkg/log"
	charmlog "github.com/charmbracelet/log"

	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"
)

// New creates the root depgate CLI command.
func New() *cobra.Command {
	var logPolicy []string
	var level log.CharmLogLevel

	cmd := &cobra.Command{
		Use:   "depgate",
		Short: "depgate decides whether adding a dependency is safe",
		Long: `depgate runs a candidate package through conflict, security, license,
version, and impact analysis and commits to a three-way verdict:
APPROVE, REVIEW, or REJECT.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			out, err := log.Writer(logPolicy)
			if err != nil {
				return fmt.Errorf("failed to create log writer: %w", err)
			}
			slog.SetDefault(slog.New(charmlog.NewWithOptions(out, charmlog.Options{ReportTimestamp: true, Level: charmlog.Level(level)})))

			return nil
		},
	}
	cmd.PersistentFlags().StringSliceVar(&logPolicy, "log-policy", []string{"builtin:stderr"}, "log policy (e.g. builtin:stderr, /tmp/log/foo)")
	cmd.PersistentFlags().Var(&level, "log-level", "log level (e.g. debug, info, warn, error)")

	cmd.AddCommand(version.WithFont("starwars"))
	cmd.AddCommand(CheckCmd())
	cmd.AddCommand(ManifestCmd())

	cmd.DisableAutoGenTag = true

	return cmd
}
