package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/ericfisherdev/gitactivity/internal/app"
)

// Command defines one activityctl subcommand.
type Command struct {
	// Flags defines command-specific flags.
	Flags *flag.FlagSet

	// Usage is shown after "activityctl" in help. The first word is the
	// command name.
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, a *app.App, out io.Writer) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-30s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "activityctl <cmd> --help".
func (c *Command) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: activityctl [--db path]", c.Usage)
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.Short)

	if c.Flags.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, buf.String())
	}
}

// Parse parses args into the command's flags. It reports help=true when
// --help was requested.
func (c *Command) Parse(args []string) (help bool, err error) {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err = c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if extra := c.Flags.Args(); len(extra) > 0 {
		return false, fmt.Errorf("unexpected arguments: %s", strings.Join(extra, " "))
	}
	return false, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
