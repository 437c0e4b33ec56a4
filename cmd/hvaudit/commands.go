package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/hvaudit/internal/core"
	"github.com/agenthands/hvaudit/internal/core/verify"
	"github.com/agenthands/hvaudit/internal/driver"
)

var (
	extractRoot string
	extractOut  string

	blindIn    core.BlindInput
	blindGraph bool

	readyRoot       string
	readyExtractOut string
	readyOut        string

	blindingCSV    string
	blindingSource string
	blindingOut    string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract comparison and artifact records from an HV evidence tree",
	RunE:  runExtract,
}

var blindCmd = &cobra.Command{
	Use:   "blind",
	Short: "Join the extracted comparisons against the blinding authority documents",
	Long: `Loads the primary blinding map, the optional secondary map and manual
overrides, merges them into one mapping and enriches every comparison record.
Both output datasets are written together or not at all.

With --graph the provenance of every record is exported to Memgraph after the
outputs are committed.`,
	RunE: runBlind,
}

var verifyReadyCmd = &cobra.Command{
	Use:   "verify-ready",
	Short: "Verify an extraction output is complete and agrees with the evidence tree",
	RunE:  runVerifyReady,
}

var verifyBlindingCmd = &cobra.Command{
	Use:   "verify-blinding",
	Short: "Verify an enriched WITH_BLINDING dataset",
	RunE:  runVerifyBlinding,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [reference] [candidate-one] [candidate-two]",
	Short: "Print the expected match candidate for three packet labels",
	Args:  cobra.ExactArgs(3),
	RunE:  runResolve,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractRoot, "root", ".", "evidence tree root")
	f.StringVar(&extractOut, "out", "hvtA_extract", "output directory")

	f = blindCmd.Flags()
	f.StringVar(&blindIn.PrimaryMap, "primary", "", "primary blinding map (markdown with a fenced JSON block)")
	f.StringVar(&blindIn.SecondaryMap, "secondary", "", "secondary blinding map")
	f.StringVar(&blindIn.Overrides, "overrides", "", "manual override fragments")
	f.StringVar(&blindIn.Comparisons, "comparisons", "", "extracted comparisons CSV")
	f.StringVar(&blindIn.OutDir, "out", "hvtA_blind", "output directory")
	f.BoolVar(&blindGraph, "graph", false, "export provenance to Memgraph")

	f = verifyReadyCmd.Flags()
	f.StringVar(&readyRoot, "root", ".", "evidence tree root")
	f.StringVar(&readyExtractOut, "extract-out", "hvtA_extract", "extraction output directory")
	f.StringVar(&readyOut, "out", "hvtA_verify", "report directory")

	f = verifyBlindingCmd.Flags()
	f.StringVar(&blindingCSV, "csv", "", "enriched WITH_BLINDING CSV")
	f.StringVar(&blindingSource, "source", "", "source comparisons CSV for the provenance check")
	f.StringVar(&blindingOut, "out", "hvtA_verify", "report directory")
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := requireFiles(extractRoot); err != nil {
		return err
	}
	a, err := newAuditor()
	if err != nil {
		return err
	}
	res, paths, err := a.Extract(cmd.Context(), extractRoot, extractOut, policy())
	if err != nil {
		return err
	}
	printPaths(cmd, paths)
	if err := res.Err(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "extracted %d comparisons, %d artifacts\n", len(res.Comparisons.Rows), len(res.Artifacts.Rows))
	return nil
}

func runBlind(cmd *cobra.Command, args []string) error {
	if blindIn.PrimaryMap == "" || blindIn.Comparisons == "" {
		return usageError{fmt.Errorf("--primary and --comparisons are required")}
	}
	if err := requireFiles(blindIn.PrimaryMap, blindIn.SecondaryMap, blindIn.Overrides, blindIn.Comparisons); err != nil {
		return err
	}
	ctx := cmd.Context()

	var d driver.GraphDriver
	if blindGraph {
		md, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			return err
		}
		defer md.Close(ctx)
		d = md
	}

	a, err := core.NewAuditor(cfg, d, logger)
	if err != nil {
		return err
	}
	report, err := a.Blind(ctx, blindIn, policy())
	if err != nil {
		return err
	}
	printPaths(cmd, report.Outputs)

	if blindGraph {
		if err := a.ExportGraph(ctx, report); err != nil {
			return err
		}
		logger.Info("provenance exported",
			zap.String("run_id", report.RunID),
			zap.Int("documents", report.Graph.Documents),
			zap.Int("mappings", report.Graph.Mappings),
			zap.Int("comparisons", report.Graph.Comparisons),
		)
	}
	return printJSON(cmd, report)
}

func runVerifyReady(cmd *cobra.Command, args []string) error {
	a, err := newAuditor()
	if err != nil {
		return err
	}
	r, paths, err := a.VerifyReady(readyRoot, readyExtractOut, readyOut, policy())
	return finishReport(cmd, r, paths, err)
}

func runVerifyBlinding(cmd *cobra.Command, args []string) error {
	if blindingCSV == "" {
		return usageError{fmt.Errorf("--csv is required")}
	}
	a, err := newAuditor()
	if err != nil {
		return err
	}
	r, paths, err := a.VerifyBlinding(blindingCSV, blindingSource, blindingOut, policy())
	return finishReport(cmd, r, paths, err)
}

func finishReport(cmd *cobra.Command, r *verify.Report, paths []string, err error) error {
	if err != nil {
		return err
	}
	printPaths(cmd, paths)
	if !r.Passed() {
		err := fmt.Errorf("%s: %d errors: %w", r.Name, r.Errors(), r.Err())
		for _, is := range r.Issues {
			if is.Code == "MISSING_INPUT" {
				return usageError{err}
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", r.Name)
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newAuditor()
	if err != nil {
		return err
	}
	res, err := a.Resolve(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return printJSON(cmd, res)
}

func printPaths(cmd *cobra.Command, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
