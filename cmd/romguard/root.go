// Command romguard is the CLI front end for the boot core: running a
// bundle through the verifier in isolation, driving one of the three
// reset flows end-to-end against a fixture, or serving the mailbox
// command loop standalone — the same "root command plus flag-bound
// subcommands" shape as the upstream local-cluster CLIs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openroot/romguard/pkg/romlog"
)

var rootCmd = &cobra.Command{
	Use:   "romguard",
	Short: "Verify and boot Caliptra-style firmware bundles",
	Long:  "romguard drives the image-verification and boot core of a silicon root-of-trust ROM outside of hardware, for testing and CI.",
}

func rootContext() context.Context {
	l, err := zap.NewDevelopment()
	if err != nil {
		return context.Background()
	}
	return romlog.WithLogger(context.Background(), l.Sugar())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
