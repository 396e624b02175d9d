package depgate

import (
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chainguard-dev/depgate/pkg"
)

type manifestCLIFlags struct {
	outputFormat string
	maven        bool
}

var manifestFlags manifestCLIFlags

// ManifestCmd builds the `depgate manifest` command: the adapter that checks
// every declared dependency of a project and reports the ones that do not
// come back APPROVE.
func ManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <file>",
		Short: "Check every dependency declared in a project manifest",
		Long: `Manifest parses a project's dependency list (requirements.txt or
pom.xml), runs each declared dependency through the approval pipeline, and
prints the subset whose verdict is not APPROVE.

Examples:
  depgate manifest requirements.txt
  depgate manifest pom.xml --maven`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidates, err := pkg.ParseManifest(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to parse manifest: %w", err)
			}
			if len(candidates) == 0 {
				fmt.Println("No dependencies declared.")
				return nil
			}

			engine, err := buildManifestEngine(cmd)
			if err != nil {
				return err
			}

			bar := pb.StartNew(len(candidates))
			flagged, err := pkg.FlagManifest(cmd.Context(), engine, candidates, func() { bar.Increment() })
			bar.Finish()
			if err != nil {
				return err
			}

			if len(flagged) == 0 {
				fmt.Printf("All %d dependencies approved.\n", len(candidates))
				return nil
			}
			for _, report := range flagged {
				if err := report.Write(manifestFlags.outputFormat, os.Stdout); err != nil {
					return err
				}
				fmt.Println()
			}
			return fmt.Errorf("%d of %d dependencies need attention", len(flagged), len(candidates))
		},
	}

	flagSet := cmd.Flags()
	flagSet.StringVar(&manifestFlags.outputFormat, "output", "human", "Output format: human, json, or yaml")
	flagSet.BoolVar(&manifestFlags.maven, "maven", false, "Resolve dependencies against Maven Central instead of PyPI")
	flagSet.StringVar(&checkFlags.policyFile, "policy-file", "", "YAML file with pre-approval, exemption, and substitution tables")
	flagSet.DurationVar(&checkFlags.analyzerTimeout, "analyzer-timeout", 30*time.Second, "Per-analyzer timeout")

	return cmd
}

// buildManifestEngine mirrors buildEngine but swaps in the Maven registry
// when requested. Maven has no dry-run resolver here, so conflict analysis
// degrades to REVIEW for those manifests.
func buildManifestEngine(cmd *cobra.Command) (*pkg.Engine, error) {
	if !manifestFlags.maven {
		return buildEngine(cmd.Context())
	}

	opts := []pkg.EngineOption{
		pkg.WithRegistry(pkg.NewMavenRegistry()),
		pkg.WithAdvisorySources(pkg.NewOSVSource("Maven")),
		pkg.WithAnalyzerTimeout(checkFlags.analyzerTimeout),
		pkg.WithInstallCommand(func(name, _ string) string {
			return fmt.Sprintf("mvn dependency:get -Dartifact=%s", name)
		}),
	}
	if checkFlags.policyFile != "" {
		policy, err := pkg.LoadPolicyData(afero.NewOsFs(), checkFlags.policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		opts = append(opts, pkg.WithPolicyData(policy))
	}
	return pkg.NewEngine(opts...), nil
}
