package main

import (
	"context"
	"os"

	"github.com/dtmfin/dtmfin/cmd"
	"github.com/dtmfin/dtmfin/internal/buildinfo"
)

// Set at build time.
var (
	version   string
	buildDate string
)

func main() {
	os.Exit(cmd.Execute(context.Background(), buildinfo.NewContext(version, buildDate), os.Args[1:], os.Stdout, os.Stderr))
}
