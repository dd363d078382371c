// Command wgslowc lowers a WGSL shader to its intermediate representation
// and prints a summary of the resulting module.
//
// Usage:
//
//	wgslowc [flags] <input.wgsl>
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "wgslowc <input.wgsl>",
	Short: "Lower a WGSL shader to IR",
	Long:  "wgslowc parses, resolves, and lowers a WGSL shader module to its intermediate representation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLower,
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable trace-level logging of the lowering pass")
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config enabling optional WGSL extensions")
	rootCmd.Flags().String("dump", "", "write a text dump of the lowered module to this path (default: stdout summary only)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
