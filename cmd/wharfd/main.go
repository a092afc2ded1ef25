// Command wharfd runs the wharf daemon in the foreground, for systemd units
// and containers. The wharf CLI launches the same loop through `wharf daemon
// run` when self-managing the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"wharf/internal/config"
	"wharf/internal/daemonrun"
)

// version is stamped by the build; "dev" otherwise.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "configuration file path")
	logLevel := flag.String("log-level", "", "override the configured log level")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wharfd " + version)
		return
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel: *logLevel,
		Version:  version,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
