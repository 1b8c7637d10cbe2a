package base

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagSetHelp(t *testing.T) {
	f := NewFlagSet(flag.NewFlagSet("test", flag.ContinueOnError))
	var (
		config string
		limit  int
	)
	f.StringVar(&config, "config", "", "Path to config file")
	f.IntVar(&limit, "limit", 20, "Maximum number\nof rows")

	help := f.Help()
	assert.Contains(t, help, "Options:")
	assert.Contains(t, help, "  -config\n      Path to config file")
	assert.Contains(t, help, "  -limit=20\n      Maximum number\n      of rows")

	empty := NewFlagSet(flag.NewFlagSet("empty", flag.ContinueOnError))
	assert.Equal(t, "", empty.Help())
}
