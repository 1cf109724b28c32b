package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/leveldb"
)

func init() {
	rootCmd.AddCommand(newManifestCmd())
}

func newManifestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <file>",
		Short: "List the version edits of a LevelDB manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(args[0])
		},
	}
}

func runManifest(path string) error {
	data, unmap, err := mmfile.Map(path)
	if err != nil {
		return err
	}
	defer unmap()

	reader := leveldb.NewManifestReader(data, openOptions())
	edits, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	if jsonOut {
		return printJSON(edits)
	}

	for i, edit := range edits {
		printInfo("version edit %d:\n", i)
		if edit.Comparator != "" {
			printInfo("  comparator %s\n", edit.Comparator)
		}
		if edit.HasLogNumber {
			printInfo("  log number %d\n", edit.LogNumber)
		}
		if edit.HasPrevLogNumber {
			printInfo("  previous log number %d\n", edit.PrevLogNumber)
		}
		if edit.HasNextFileNumber {
			printInfo("  next file number %d\n", edit.NextFileNumber)
		}
		if edit.HasLastSequence {
			printInfo("  last sequence %d\n", edit.LastSequence)
		}
		for _, cp := range edit.CompactPointers {
			printInfo("  compact pointer level %d key %q\n", cp.Level, cp.Key)
		}
		for _, df := range edit.DeletedFiles {
			printInfo("  deleted file level %d number %d\n", df.Level, df.Number)
		}
		for _, nf := range edit.NewFiles {
			printInfo("  new file level %d number %d size %d\n", nf.Level, nf.Number, nf.Size)
		}
	}
	printInfo("%d version edits\n", len(edits))
	return nil
}
