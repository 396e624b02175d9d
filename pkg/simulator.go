package pkg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chainguard-dev/clog"
)

// Simulator invokes a package manager in a non-committing mode to detect
// resolution problems before anything is installed.
type Simulator interface {
	DryRunAdd(ctx context.Context, name, constraint string) (*DryRunResult, error)
}

// PipSimulator runs `pip install --dry-run` and parses its resolution report.
type PipSimulator struct {
	// PipPath is the pip executable to invoke, "pip" by default.
	PipPath string
}

// NewPipSimulator creates a simulator backed by the local pip installation.
func NewPipSimulator() *PipSimulator {
	return &PipSimulator{PipPath: "pip"}
}

// pipReport mirrors the JSON document produced by `pip install --report`.
type pipReport struct {
	Install []struct {
		Requested bool `json:"requested"`
		Metadata  struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"metadata"`
	} `json:"install"`
}

// DryRunAdd implements Simulator. A missing pip binary or a killed process
// maps to ErrConflictCheckUnavailable; resolver diagnostics (conflicts,
// impossible constraints) come back as a non-success result instead.
func (s *PipSimulator) DryRunAdd(ctx context.Context, name, constraint string) (*DryRunResult, error) {
	log := clog.FromContext(ctx)

	spec := NormalizeName(name) + constraint
	// Resolution must run against the active environment: conflicts with
	// already-installed pins only surface in the diagnostics that way, and
	// the report then lists just the packages that would newly install.
	cmd := exec.CommandContext(ctx, s.PipPath,
		"install", "--dry-run", "--quiet", "--report", "-", spec)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("running %s", strings.Join(cmd.Args, " "))
	err := cmd.Run()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflictCheckUnavailable, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: pip executable not found", ErrConflictCheckUnavailable)
	}

	diagnostics := collectDiagnostics(&stderr)
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %v", ErrConflictCheckUnavailable, err)
		}
		// The resolver ran and said no. That is an answer, not a failure.
		if len(diagnostics) == 0 {
			diagnostics = []string{fmt.Sprintf("resolver exited with %s", exitErr)}
		}
		return &DryRunResult{Success: false, Diagnostics: diagnostics}, nil
	}

	var report pipReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return nil, fmt.Errorf("%w: unreadable resolver report: %v", ErrConflictCheckUnavailable, err)
	}

	result := &DryRunResult{Success: true, Diagnostics: diagnostics}
	for _, item := range report.Install {
		depth := 1
		if item.Requested {
			depth = 0
		}
		// pip's report is flat; everything pulled in beyond the candidate
		// itself is recorded as a direct child.
		result.ResolvedTree = append(result.ResolvedTree, ResolvedNode{
			Name:    NormalizeName(item.Metadata.Name),
			Version: item.Metadata.Version,
			Depth:   depth,
		})
	}
	return result, nil
}

func collectDiagnostics(stderr *bytes.Buffer) []string {
	var diagnostics []string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "WARNING:") {
			continue
		}
		diagnostics = append(diagnostics, line)
	}
	return diagnostics
}
