package main

import (
	"os"

	"github.com/hashicorp-forge/docserve/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
