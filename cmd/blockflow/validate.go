package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c360/blockflow/errors"
	"github.com/c360/blockflow/program"
)

// errWarnings is returned by validate --strict when the analysis is not clean
var errWarnings = fmt.Errorf("program has warnings: %w", errors.ErrInvalidData)

func newValidateCmd(a *app) *cobra.Command {
	var (
		asJSON bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate <program.json>...",
		Short: "Check program documents and report structural problems",
		Long: `Validate checks each document against the program schema, rebuilds the
graph and reports chains, blocks unreachable from a Start block, unconnected
inputs, function blocks without data links and broken expressions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			warned := false
			for _, path := range args {
				prog, err := readProgramFile(path, a.logger)
				if err != nil {
					return err
				}
				analysis := program.Analyze(prog)
				if analysis.ValidationStatus != "healthy" {
					warned = true
				}

				if asJSON {
					enc := json.NewEncoder(a.out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(analysis); err != nil {
						return errors.WrapFatal(err, "blockflow", "validate", "encode analysis")
					}
					continue
				}
				printReport(a.out, path, prog, analysis)
			}
			if strict && warned {
				return errors.WrapInvalid(errWarnings, "blockflow", "validate", "strict check")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when warnings are found")
	return cmd
}

// readProgramFile reads, schema-checks and decodes one program document
func readProgramFile(path string, logger *slog.Logger) (*program.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "blockflow", "readProgramFile", "read "+path)
	}
	prog, err := program.Unmarshal(data, program.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "blockflow", "readProgramFile", "decode "+path)
	}
	return prog, nil
}

func printReport(w io.Writer, name string, prog *program.Program, a *program.Analysis) {
	status := color.GreenString("healthy")
	if a.ValidationStatus != "healthy" {
		status = color.YellowString("warnings")
	}
	fmt.Fprintf(w, "%s [%s] %d blocks\n", color.HiWhiteString("%s", name), status, prog.Len())

	for i, chain := range a.TopChains {
		fmt.Fprintf(w, "  chain %d: %s\n", i+1, color.CyanString("%s", strings.Join(kinds(prog, chain), " -> ")))
	}

	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(w, "  %s\n", color.YellowString("%s:", title))
		for _, l := range lines {
			fmt.Fprintf(w, "    - %s\n", l)
		}
	}

	var lines []string
	for _, id := range a.UnreachableActions {
		lines = append(lines, describe(prog, id))
	}
	section("not reached from a start block", lines)

	lines = nil
	for _, u := range a.UnconnectedInputs {
		lines = append(lines, fmt.Sprintf("%s %s: input %q", u.Kind, short(u.BlockID), u.Port))
	}
	section("unconnected inputs", lines)

	lines = nil
	for _, d := range a.DisconnectedBlocks {
		lines = append(lines, fmt.Sprintf("%s %s: %s", d.Kind, short(d.BlockID), d.Issue))
	}
	section("disconnected blocks", lines)

	lines = nil
	for _, e := range a.ExpressionErrors {
		lines = append(lines, fmt.Sprintf("%s %q: %s", short(e.BlockID), e.Expression, color.RedString("%s", e.Error)))
	}
	section("expression errors", lines)
}

func kinds(prog *program.Program, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = describe(prog, id)
	}
	return out
}

func describe(prog *program.Program, id string) string {
	if b, ok := prog.Block(id); ok {
		return b.Kind().String() + "(" + short(id) + ")"
	}
	return short(id)
}

// short trims a uuid to its first group
func short(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
