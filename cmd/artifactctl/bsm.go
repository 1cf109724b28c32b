package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/pkg/formats/bsm"
)

func init() {
	rootCmd.AddCommand(newBSMCmd())
}

func newBSMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bsm <file>",
		Short: "List the event records of a BSM audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBSM(args[0])
		},
	}
}

func runBSM(path string) error {
	f, err := bsm.Open(path, openOptions())
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer f.Close()

	records := f.Records()
	if jsonOut {
		return printJSON(records)
	}

	for _, record := range records {
		ts := time.Unix(int64(record.Header.Timestamp), 0).UTC().Format(time.RFC3339)
		printInfo("%s event %d (%d tokens)\n", ts, record.Header.EventType, len(record.Tokens))
		if !verbose {
			continue
		}
		for _, token := range record.Tokens {
			switch data := token.Data.(type) {
			case *bsm.TextToken:
				printInfo("  text %q\n", data.Text)
			case *bsm.PathToken:
				printInfo("  path %q\n", data.Path)
			case *bsm.SubjectToken:
				printInfo("  subject pid %d uid %d\n", data.PID, data.AuditUID)
			case *bsm.ReturnToken:
				printInfo("  return status %d value %d\n", data.Status, data.Value)
			case *bsm.ArgToken:
				printInfo("  arg %d %q = %d\n", data.Index, data.Text, data.Value)
			}
		}
	}
	printInfo("%d records\n", len(records))
	return nil
}
