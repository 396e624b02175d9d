package depgate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	githubql "github.com/shurcooL/githubv4"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/chainguard-dev/depgate/pkg"
)

type checkCLIFlags struct {
	constraint      string
	outputFormat    string
	policyFile      string
	registryURL     string
	pipPath         string
	analyzerTimeout time.Duration
	noSimulator     bool
}

var checkFlags checkCLIFlags

// CheckCmd builds the `depgate check` command.
func CheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <package[@constraint]>",
		Short: "Run the approval pipeline for one candidate package",
		Long: `Check analyzes a single candidate dependency and prints a report.

Examples:
  # Check the latest version of a package
  depgate check requests

  # Check a package at a pinned version
  depgate check "django@==4.2.1"

  # Check against a version range with a custom policy file
  depgate check "flask@>=2.0,<3.0" --policy-file approval-policy.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate := parseCandidateArg(args[0])
			if checkFlags.constraint != "" {
				candidate.Constraint = checkFlags.constraint
			}

			engine, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}

			report, err := engine.Analyze(cmd.Context(), candidate)
			if err != nil {
				return fmt.Errorf("failed to analyze %s: %w", candidate.Name, err)
			}
			return report.Write(checkFlags.outputFormat, os.Stdout)
		},
	}

	flagSet := cmd.Flags()
	flagSet.StringVar(&checkFlags.constraint, "constraint", "", "Version constraint for the candidate (overrides the @constraint suffix)")
	flagSet.StringVar(&checkFlags.outputFormat, "output", "", "Output format: human, json, or yaml")
	flagSet.StringVar(&checkFlags.policyFile, "policy-file", "", "YAML file with pre-approval, exemption, and substitution tables")
	flagSet.StringVar(&checkFlags.registryURL, "registry-url", "", "Override the package registry endpoint")
	flagSet.StringVar(&checkFlags.pipPath, "pip", "pip", "pip executable used for dry-run resolution")
	flagSet.DurationVar(&checkFlags.analyzerTimeout, "analyzer-timeout", 30*time.Second, "Per-analyzer timeout")
	flagSet.BoolVar(&checkFlags.noSimulator, "no-simulator", false, "Skip dry-run resolution (conflict analysis degrades to REVIEW)")

	return cmd
}

// parseCandidateArg splits "name@constraint" into a candidate. A bare
// version after the separator is treated as an exact pin.
func parseCandidateArg(arg string) pkg.PackageCandidate {
	name, constraint, found := strings.Cut(arg, "@")
	candidate := pkg.PackageCandidate{Name: name}
	if !found || constraint == "" {
		return candidate
	}
	if !strings.ContainsAny(constraint, "><=~!") {
		constraint = "==" + constraint
	}
	candidate.Constraint = constraint
	return candidate
}

// buildEngine assembles the engine from the check flags and environment.
func buildEngine(ctx context.Context) (*pkg.Engine, error) {
	var registryOpts []pkg.RegistryOption
	if checkFlags.registryURL != "" {
		registryOpts = append(registryOpts, pkg.WithBaseURL(checkFlags.registryURL))
	}

	opts := []pkg.EngineOption{
		pkg.WithRegistry(pkg.NewPyPIRegistry(registryOpts...)),
		pkg.WithAnalyzerTimeout(checkFlags.analyzerTimeout),
	}

	if !checkFlags.noSimulator {
		sim := pkg.NewPipSimulator()
		sim.PipPath = checkFlags.pipPath
		opts = append(opts, pkg.WithSimulator(sim))
	}

	sources := []pkg.AdvisorySource{pkg.NewOSVSource("PyPI")}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient := oauth2.NewClient(ctx, src)
		sources = append(sources, pkg.NewGHSASource(githubql.NewClient(httpClient), "PIP"))
	}
	opts = append(opts, pkg.WithAdvisorySources(sources...))

	if checkFlags.policyFile != "" {
		policy, err := pkg.LoadPolicyData(afero.NewOsFs(), checkFlags.policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		opts = append(opts, pkg.WithPolicyData(policy))
	}

	return pkg.NewEngine(opts...), nil
}
