package base

import (
	"bytes"
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every CLI command.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewCommand returns a Command with the given logger and UI.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{
		Log: log,
		UI:  ui,
	}
}

// FlagSet wraps a flag.FlagSet with help output in the CLI's format.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet returns a FlagSet wrapping f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help returns the usage text of all flags.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	first := true

	f.VisitAll(func(fl *flag.Flag) {
		if first {
			buf.WriteString("\n\nOptions:\n")
			first = false
		}
		fmt.Fprintf(&buf, "\n  -%s", fl.Name)
		if fl.DefValue != "" {
			fmt.Fprintf(&buf, "=%s", fl.DefValue)
		}
		buf.WriteString("\n")
		for _, line := range strings.Split(fl.Usage, "\n") {
			fmt.Fprintf(&buf, "      %s\n", line)
		}
	})

	return strings.TrimRight(buf.String(), "\n")
}
