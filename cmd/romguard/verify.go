package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/romlog"
	"github.com/openroot/romguard/pkg/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the image verifier against a JSON bundle fixture",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify()
	},
}

func init() {
	verifyCmd.Flags().String("bundle", "", "path to a JSON-encoded bundle fixture")
	verifyCmd.Flags().String("fuses", "", "path to a JSON-encoded fuse bank fixture")
	verifyCmd.Flags().String("reset-reason", "cold", "cold|update")
	_ = verifyCmd.MarkFlagRequired("bundle")
	_ = verifyCmd.MarkFlagRequired("fuses")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify() error {
	ctx := rootContext()
	logger := romlog.FromContext(ctx)

	var b bundle.Bundle
	if err := readJSONFile(viper.GetString("bundle"), &b); err != nil {
		return fmt.Errorf("romguard verify: loading bundle: %w", err)
	}

	var fuses fuse.Bank
	if err := readJSONFile(viper.GetString("fuses"), &fuses); err != nil {
		return fmt.Errorf("romguard verify: loading fuses: %w", err)
	}

	reason := verify.ColdReset
	if viper.GetString("reset-reason") == "update" {
		reason = verify.UpdateReset
	}

	eng := engine.NewHardwareFacade(keyvault.New())
	info, err := verify.Verify(ctx, eng, &fuses, &b.Manifest, b.Bytes, uint64(len(b.Bytes)), reason, nil)
	if err != nil {
		logger.Errorw("verification failed", "error", err)
		return err
	}

	out, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func readJSONFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
