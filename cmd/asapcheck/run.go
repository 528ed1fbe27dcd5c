package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Swind/go-asap/core"
	"github.com/Swind/go-asap/internal/conformance"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run scenarios and report pass/fail per environment",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "matrix",
				Aliases: []string{"m"},
				Usage:   "YAML file listing the environments (default: built-in matrix)",
			},
			&cli.StringSliceFlag{
				Name:    "scenario",
				Aliases: []string{"s"},
				Usage:   "Only run scenarios whose name contains this value (repeatable)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format: text, json or yaml",
			},
		},

		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	// 1. Get flags
	format := c.String("format")
	if format != "text" && format != "json" && format != "yaml" {
		return cli.Exit(fmt.Sprintf("unknown format %q", format), 2)
	}

	matrix := conformance.DefaultMatrix()
	if path := c.String("matrix"); path != "" {
		m, err := conformance.LoadMatrix(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 2)
		}
		matrix = m
	}

	// 2. Run
	logger := core.NewDefaultLoggerTo(c.App.ErrWriter, c.String("log-level"))
	runner := conformance.NewRunner(logger).Select(c.StringSlice("scenario")...)
	if len(runner.ScenarioNames()) == 0 {
		return cli.Exit("no scenario matches the filter", 2)
	}

	logger.Info("running conformance scenarios",
		core.F("scenarios", len(runner.ScenarioNames())),
		core.F("environments", len(matrix.Environments)),
	)
	report, err := runner.Run(c.Context, matrix)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 2)
	}

	// 3. Format output
	if err := writeReport(c.App.Writer, format, report); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 2)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d checks failed", len(failed), len(report.Results)), 1)
	}
	return nil
}

func writeReport(w io.Writer, format string, report conformance.Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	}

	for _, res := range report.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s  %-24s %-26s %v\n", status, res.Environment, res.Scenario, res.Duration)
		if !res.Passed {
			fmt.Fprintf(w, "      %s\n", res.Error)
		}
	}
	fmt.Fprintf(w, "%d checks, %d failed\n", len(report.Results), len(report.Failed()))
	return nil
}
