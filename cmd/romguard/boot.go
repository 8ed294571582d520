package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openroot/romguard/pkg/bundle"
	"github.com/openroot/romguard/pkg/datavault"
	"github.com/openroot/romguard/pkg/engine"
	"github.com/openroot/romguard/pkg/flow"
	"github.com/openroot/romguard/pkg/fuse"
	"github.com/openroot/romguard/pkg/keyvault"
	"github.com/openroot/romguard/pkg/mailbox"
	"github.com/openroot/romguard/pkg/persist"
	"github.com/openroot/romguard/pkg/translog"
)

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Drive one of the reset-reason flows against a fixture",
}

var bootColdCmd = &cobra.Command{
	Use: "cold",
	PreRunE: func(cmd *cobra.Command, args []string) error { return viper.BindPFlags(cmd.Flags()) },
	RunE: func(cmd *cobra.Command, args []string) error { return runBoot(flow.Cold) },
}

var bootUpdateCmd = &cobra.Command{
	Use: "update",
	PreRunE: func(cmd *cobra.Command, args []string) error { return viper.BindPFlags(cmd.Flags()) },
	RunE: func(cmd *cobra.Command, args []string) error { return runBoot(flow.Update) },
}

var bootWarmCmd = &cobra.Command{
	Use: "warm",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := rootContext()
		core := &flow.Core{
			Engine: engine.NewHardwareFacade(keyvault.New()),
			Vault:  keyvault.New(),
			Data:   datavault.New(),
			Persist: persist.New(),
			PCRs:    translog.NewBank(),
			Fuses:   &fuse.Bank{},
		}
		return flow.WarmReset(ctx, core)
	},
}

func init() {
	bootColdCmd.Flags().String("bundle", "", "path to a JSON-encoded bundle fixture")
	bootColdCmd.Flags().String("fuses", "", "path to a JSON-encoded fuse bank fixture")
	_ = bootColdCmd.MarkFlagRequired("bundle")
	_ = bootColdCmd.MarkFlagRequired("fuses")

	bootUpdateCmd.Flags().String("bundle", "", "path to a JSON-encoded bundle fixture")
	bootUpdateCmd.Flags().String("fuses", "", "path to a JSON-encoded fuse bank fixture")
	_ = bootUpdateCmd.MarkFlagRequired("bundle")
	_ = bootUpdateCmd.MarkFlagRequired("fuses")

	bootCmd.AddCommand(bootColdCmd, bootUpdateCmd, bootWarmCmd)
	rootCmd.AddCommand(bootCmd)
}

func runBoot(reason flow.Reason) error {
	ctx := rootContext()

	var b bundle.Bundle
	if err := readJSONFile(viper.GetString("bundle"), &b); err != nil {
		return fmt.Errorf("romguard boot: loading bundle: %w", err)
	}
	var fuses fuse.Bank
	if err := readJSONFile(viper.GetString("fuses"), &fuses); err != nil {
		return fmt.Errorf("romguard boot: loading fuses: %w", err)
	}

	vault := keyvault.New()
	core := &flow.Core{
		Engine:  engine.NewHardwareFacade(vault),
		Vault:   vault,
		Data:    datavault.New(),
		Persist: persist.New(),
		PCRs:    translog.NewBank(),
		Fuses:   &fuses,
	}

	mb := mailbox.NewLoop(core.PCRs, core.Persist, core.Fuses, false)
	loadBundle := func(ctx context.Context) (*bundle.Bundle, error) { return &b, nil }

	if err := flow.Dispatch(ctx, core, reason, mb, loadBundle); err != nil {
		return err
	}

	out, err := json.MarshalIndent(core.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
