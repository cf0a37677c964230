package version

import (
	"fmt"
	"runtime"
)

const (
	CLIName    = "tradedesk"
	CLIVersion = "0.2.0"
)

// Commit is injected at build time via -ldflags.
var Commit = "dev"

func Long() string {
	return fmt.Sprintf("%s %s (%s, %s %s/%s)", CLIName, CLIVersion, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
