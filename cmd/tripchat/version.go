package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tripchat"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tripchat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tripchat version %s\n", strings.TrimSpace(tripchat.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
