package main

import (
	"fmt"
	"io"

	"github.com/ohowland/cgc_opt/internal/pkg/scenario"
	"github.com/spf13/cobra"
)

// checkTolerance is the absolute tolerance of --check.
const checkTolerance = 1e-6

func solveCmd() *cobra.Command {
	var out string
	var check bool

	c := &cobra.Command{
		Use:   "solve <document>",
		Short: "Solve a scenario document and write the filled snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return solve(args[0], out, check, cmd.OutOrStdout())
		},
	}

	c.Flags().StringVarP(&out, "out", "o", "", "Write the snapshot to this file (format by extension; default stdout JSON)")
	c.Flags().BoolVar(&check, "check", false, "Compare the solved outputs against the document's own outputs")
	return c
}

// solve runs the document at path. With check set, the expected outputs of
// the document are compared against the solved ones and any mismatch fails.
func solve(path, out string, check bool, w io.Writer) error {
	doc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	site, err := scenario.Build(doc.Config)
	if err != nil {
		return err
	}
	if err := site.Apply(doc.Inputs); err != nil {
		return err
	}
	report, err := site.Solve()
	if err != nil {
		return err
	}
	snap := site.Snapshot(doc.Inputs, report)

	if out != "" {
		if err := scenario.Save(snap, out); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s, objective %g\n", out, report.Result.Status, report.Result.Objective)
	} else {
		data, err := scenario.Encode(snap, scenario.JSON)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	}

	if !check {
		return nil
	}
	diffs := scenario.Compare(doc.Outputs, report.Outputs, checkTolerance)
	for _, d := range diffs {
		fmt.Fprintln(w, d.String())
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%s: %d outputs differ", path, len(diffs))
	}
	return nil
}
