package main

import (
	"fmt"

	"github.com/Swind/go-asap/internal/conformance"
	"github.com/urfave/cli/v2"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List scenarios and the built-in environments",
		Action:  listAction,
	}
}

func listAction(c *cli.Context) error {
	w := c.App.Writer

	fmt.Fprintln(w, "Scenarios:")
	for _, sc := range conformance.Scenarios() {
		fmt.Fprintf(w, "  %-26s %s\n", sc.Name, sc.Description)
	}

	fmt.Fprintln(w, "Environments:")
	for _, env := range conformance.DefaultMatrix().Environments {
		fmt.Fprintf(w, "  %-26s observer=%t drop_zero_delay=%t capacity=%d\n",
			env.Name, env.Observer, env.DropZeroDelay, env.Capacity)
	}
	return nil
}
