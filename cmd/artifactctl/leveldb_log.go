package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/leveldb"
)

var logBatches bool

func init() {
	cmd := newLevelDBLogCmd()
	cmd.Flags().BoolVar(&logBatches, "batches", false, "Decode write batches inside records")
	rootCmd.AddCommand(cmd)
}

func newLevelDBLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leveldb-log <file>",
		Short: "List the records of a LevelDB write-ahead log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLevelDBLog(args[0])
		},
	}
}

func runLevelDBLog(path string) error {
	data, unmap, err := mmfile.Map(path)
	if err != nil {
		return err
	}
	defer unmap()

	reader := leveldb.NewLogReader(data, openOptions())
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	if jsonOut {
		type jsonRecord struct {
			Offset uint64 `json:"offset"`
			Size   int    `json:"size"`
		}
		out := make([]jsonRecord, 0, len(records))
		for _, r := range records {
			out = append(out, jsonRecord{Offset: r.Offset, Size: len(r.Payload)})
		}
		return printJSON(out)
	}

	for i, record := range records {
		printInfo("record %d: offset 0x%08x size %d\n", i, record.Offset, len(record.Payload))
		printData("payload", record.Payload)

		if !logBatches {
			continue
		}
		batch, err := leveldb.ParseBatch(record.Payload)
		if err != nil {
			return fmt.Errorf("record %d batch: %w", i, err)
		}
		printInfo("  sequence %d, %d entries\n", batch.Sequence, len(batch.Entries))
		for _, entry := range batch.Entries {
			if entry.Type == leveldb.TypeDeletion {
				printInfo("  delete %q\n", entry.Key)
			} else {
				printInfo("  put %q = %q\n", entry.Key, entry.Value)
			}
		}
	}
	printInfo("%d records\n", len(records))
	return nil
}
