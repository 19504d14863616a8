// Command s3lite runs the S3-compatible object storage gateway.
package main

import (
	"fmt"
	"os"

	"github.com/s3lite/s3lite/cmd/s3lite/commands"

	// Import prometheus metrics to register init() functions.
	_ "github.com/s3lite/s3lite/pkg/metrics/prometheus"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
