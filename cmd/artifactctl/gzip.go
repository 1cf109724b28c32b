package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/pkg/formats/gzipf"
)

func init() {
	rootCmd.AddCommand(newGzipCmd())
}

func newGzipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gzip <file>",
		Short: "List the members of a gzip file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGzip(args[0])
		},
	}
}

func runGzip(path string) error {
	f, err := gzipf.Open(path, openOptions())
	if err != nil {
		return fmt.Errorf("open gzip file: %w", err)
	}
	defer f.Close()

	members := f.Members()
	if jsonOut {
		return printJSON(members)
	}

	for i, m := range members {
		name := m.Name
		if name == "" {
			name = "(unnamed)"
		}
		mtime := time.Unix(int64(m.ModificationTime), 0).UTC().Format(time.RFC3339)
		printInfo("member %d: %s %s %d bytes crc 0x%08x\n",
			i, name, mtime, m.UncompressedSize, m.Checksum)
		if m.Comment != "" {
			printInfo("  comment: %s\n", m.Comment)
		}
		printData("member data", m.Data)
	}
	printInfo("%d members\n", len(members))
	return nil
}
