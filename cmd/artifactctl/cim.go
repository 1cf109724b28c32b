package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artifactkit/artifactkit/pkg/cim"
)

var cimClasses bool

func init() {
	cmd := newCIMCmd()
	cmd.Flags().BoolVar(&cimClasses, "classes", false, "Decode class definition records")
	rootCmd.AddCommand(cmd)
}

func newCIMCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cim <directory> [key]",
		Short: "List the keys or objects of a WMI CIM repository",
		Long: `The cim command opens a WMI CIM repository directory (Index.map,
Index.btr, Objects.map, Objects.data) and lists its binary-tree keys. With a
key argument it resolves and dumps that object record.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCIM(args)
		},
	}
}

func runCIM(args []string) error {
	repo, err := cim.Open(args[0], openOptions())
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()
	defer func() { printWarnings(repo.Warnings()) }()

	if len(args) == 2 {
		record, err := repo.ObjectRecord(args[1])
		if err != nil {
			return err
		}
		printInfo("record type %s, %d bytes\n", record.Type, len(record.Data))
		printData("record data", record.Data)
		return nil
	}

	if cimClasses {
		classes, err := repo.ClassDefinitions()
		if err != nil {
			return err
		}
		for _, class := range classes {
			printInfo("%s : %s (%d properties)\n",
				class.ClassName, class.SuperClassName, len(class.Properties))
			if verbose {
				for _, p := range class.Properties {
					printInfo("  %s type 0x%x offset %d\n", p.Name, p.Type, p.Offset)
				}
			}
		}
		printInfo("%d class definitions\n", len(classes))
		return nil
	}

	keys, err := repo.Keys()
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(keys)
	}
	for _, key := range keys {
		printInfo("%s\n", key)
	}
	printInfo("%d keys\n", len(keys))
	return nil
}
