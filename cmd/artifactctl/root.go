package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/internal/hexdump"
	"github.com/artifactkit/artifactkit/pkg/types"
)

var (
	// Global flags
	verbose  bool
	debugHex bool
	jsonOut  bool
	tolerant bool
)

var rootCmd = &cobra.Command{
	Use:   "artifactctl",
	Short: "Inspect forensic binary artifact files",
	Long: `artifactctl decodes forensic artifact files: LevelDB logs, manifests
and tables, WMI CIM repositories, CPIO archives, BSM audit trails, utmp login
records, gzip members and MacOS fseventsd streams.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debugHex, "debug", false, "Hexdump decoded structures")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		BoolVar(&tolerant, "tolerant", false, "Keep partially decodable trailing records")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openOptions() types.OpenOptions {
	return types.OpenOptions{Tolerant: tolerant, CollectWarnings: true}
}

// printInfo prints an info message
func printInfo(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

// printVerbose prints a message only in verbose mode
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printData hexdumps raw bytes when --debug is set
func printData(label string, data []byte) {
	if !debugHex {
		return
	}
	printInfo("%s (%d bytes):\n", label, len(data))
	hexdump.Write(os.Stdout, data)
}

// printWarnings reports tolerated anomalies after a decode
func printWarnings(warnings []types.Warning) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: offset 0x%08x %s: %s\n", w.Offset, w.Context, w.Msg)
	}
}
