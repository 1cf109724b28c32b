package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/internal/mmfile"
	"github.com/artifactkit/artifactkit/pkg/leveldb"
)

func init() {
	rootCmd.AddCommand(newLevelDBTableCmd())
}

func newLevelDBTableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leveldb-table <file> [key]",
		Short: "List the entries of a LevelDB sorted table, or look one key up",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLevelDBTable(args)
		},
	}
}

func runLevelDBTable(args []string) error {
	data, unmap, err := mmfile.Map(args[0])
	if err != nil {
		return err
	}
	defer unmap()

	table, err := leveldb.NewTableReader(data, openOptions())
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer table.Close()

	if len(args) == 2 {
		value, found, err := table.Get([]byte(args[1]))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", args[1])
		}
		printInfo("%q\n", value)
		printData("value", value)
		return nil
	}

	count := 0
	err = table.Iterate(func(key leveldb.InternalKey, value []byte) bool {
		count++
		if key.Type == leveldb.TypeDeletion {
			printInfo("delete %q @%d\n", key.UserKey, key.Sequence)
		} else {
			printInfo("put %q @%d = %q\n", key.UserKey, key.Sequence, value)
		}
		return true
	})
	if err != nil {
		return err
	}
	printInfo("%d entries\n", count)
	return nil
}
