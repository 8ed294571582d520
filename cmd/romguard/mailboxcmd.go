package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openroot/romguard/pkg/mailbox"
	"github.com/openroot/romguard/pkg/romlog"
	"github.com/openroot/romguard/pkg/translog"
)

var mailboxCmd = &cobra.Command{
	Use:   "mailbox",
	Short: "Drive the pre-FW-load mailbox command loop standalone",
}

var mailboxServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Read newline-delimited JSON mailbox requests from stdin and print responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveMailbox()
	},
}

func init() {
	mailboxCmd.AddCommand(mailboxServeCmd)
	rootCmd.AddCommand(mailboxCmd)
}

// wireRequest is the JSON framing serveMailbox reads, standing in for
// the mailbox SRAM wire contract in a setting with no actual
// memory-mapped registers to poll.
type wireRequest struct {
	Pauser  uint32          `json:"pauser"`
	Command mailbox.Command `json:"command"`
	Body    []byte          `json:"body"`
}

func serveMailbox() error {
	ctx := rootContext()
	logger := romlog.FromContext(ctx)

	loop := mailbox.NewLoop(translog.NewBank(), nil, nil, false)
	scanner := bufio.NewScanner(os.Stdin)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		var wr wireRequest
		if err := json.Unmarshal(scanner.Bytes(), &wr); err != nil {
			logger.Errorw("malformed mailbox request", "error", err)
			continue
		}
		out := loop.Step(ctx, mailbox.Request{Pauser: wr.Pauser, Command: wr.Command, Body: wr.Body})
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("romguard mailbox serve: encoding response: %w", err)
		}
		if out.FatalErr != nil {
			return out.FatalErr
		}
	}
	return scanner.Err()
}
