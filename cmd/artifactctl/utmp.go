package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/internal/hexdump"
	"github.com/artifactkit/artifactkit/pkg/formats/utmp"
)

func init() {
	rootCmd.AddCommand(newUTMPCmd())
}

func newUTMPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "utmp <file>",
		Short: "List the login records of a utmp/wtmp file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUTMP(args[0])
		},
	}
}

func runUTMP(path string) error {
	f, err := utmp.Open(path, openOptions())
	if err != nil {
		return fmt.Errorf("open utmp file: %w", err)
	}
	defer f.Close()
	defer func() { printWarnings(f.Warnings()) }()

	entries := f.Entries()
	if jsonOut {
		return printJSON(entries)
	}

	for i, entry := range entries {
		ts := time.Unix(int64(entry.Timestamp), 0).UTC().Format(time.RFC3339)
		printInfo("%s type %d pid %-6d %-12s %-10s %s %s\n",
			ts, entry.Type, entry.PID, entry.Terminal, entry.Username,
			entry.Hostname, entry.IPAddress)
		if debugHex {
			if err := hexdump.WriteStructure(os.Stdout, f.EntryStructure(i)); err != nil {
				return err
			}
		}
	}
	printInfo("%d entries\n", len(entries))
	return nil
}
