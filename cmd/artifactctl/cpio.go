package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/pkg/formats/cpio"
)

func init() {
	rootCmd.AddCommand(newCPIOCmd())
}

func newCPIOCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cpio <file> [path]",
		Short: "List the entries of a CPIO archive, or dump one member",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCPIO(args)
		},
	}
}

func runCPIO(args []string) error {
	archive, err := cpio.Open(args[0], openOptions())
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()
	defer func() { printWarnings(archive.Warnings()) }()

	printVerbose("format: %s\n", archive.Format)

	if len(args) == 2 {
		entry, ok := archive.FileEntryByPath(args[1])
		if !ok {
			return fmt.Errorf("path %q not in archive", args[1])
		}
		data, err := archive.EntryData(entry)
		if err != nil {
			return err
		}
		printData("member data", data)
		if !debugHex {
			printInfo("%s", data)
		}
		return nil
	}

	entries := archive.FileEntries()
	if jsonOut {
		return printJSON(entries)
	}
	for _, entry := range entries {
		mtime := time.Unix(int64(entry.ModificationTime), 0).UTC().Format(time.RFC3339)
		printInfo("%o %8d %s %s\n", entry.Mode, entry.DataSize, mtime, entry.Path)
	}
	printInfo("%d entries\n", len(entries))
	return nil
}
