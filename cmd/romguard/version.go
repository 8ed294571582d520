package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"sigs.k8s.io/release-utils/version"
)

var versionOutput string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print romguard's build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := version.GetVersionInfo()
		switch versionOutput {
		case "json":
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
		default:
			fmt.Println(v.String())
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().StringVar(&versionOutput, "output", "text", "output format: text or json")
	rootCmd.AddCommand(versionCmd)
}
