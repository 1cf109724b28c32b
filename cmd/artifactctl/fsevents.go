package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/pkg/formats/fsevents"
)

func init() {
	rootCmd.AddCommand(newFseventsCmd())
}

func newFseventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsevents <file>",
		Short: "List the change records of a MacOS fseventsd file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFsevents(args[0])
		},
	}
}

func runFsevents(path string) error {
	f, err := fsevents.Open(path, openOptions())
	if err != nil {
		return fmt.Errorf("open fseventsd file: %w", err)
	}
	defer f.Close()

	if jsonOut {
		return printJSON(f.Records())
	}

	for _, page := range f.Pages() {
		printVerbose("page at 0x%08x version %d, %d records\n",
			page.Offset, page.FormatVersion, len(page.Records))
		for _, record := range page.Records {
			printInfo("%d 0x%08x %s\n", record.EventIdentifier, record.EventFlags, record.Path)
		}
	}
	printInfo("%d records\n", len(f.Records()))
	return nil
}
