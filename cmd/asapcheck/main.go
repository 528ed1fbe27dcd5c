// Command asapcheck runs the scheduler conformance scenarios across a matrix
// of host environments and reports pass/fail per scenario.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "asapcheck",
		Usage: "check asap schedulers against a matrix of host environments",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"ASAP_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			listCommand(),
		},
	}
}
