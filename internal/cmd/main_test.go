package cmd

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		factory cli.CommandFactory
		want    int
	}{
		{
			name: "success",
			factory: func() (cli.Command, error) {
				return &cli.MockCommand{RunResult: 0}, nil
			},
			want: 0,
		},
		{
			name: "command exit code",
			factory: func() (cli.Command, error) {
				return &cli.MockCommand{RunResult: 3}, nil
			},
			want: 3,
		},
		{
			name: "factory error",
			factory: func() (cli.Command, error) {
				return nil, errors.New("bad config")
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &cli.CLI{
				Name:     "docserve",
				Args:     []string{"serve"},
				Commands: map[string]cli.CommandFactory{"serve": tt.factory},
			}
			assert.Equal(t, tt.want, run(c, hclog.NewNullLogger()))
		})
	}
}
