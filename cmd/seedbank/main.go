// Command seedbank inspects a seedstore file: the failing seeds recorded by
// seedtest runs.
//
//	seedbank list --store seeds.db
//	seedbank show TestFoo --store seeds.db --logs
//	seedbank rm TestFoo --store seeds.db
package main

import (
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/davidbarsky/simulation/internal/prettylog"
	"github.com/davidbarsky/simulation/seedstore"
)

var storePath string

var rootCmd = &cobra.Command{
	Use:   "seedbank",
	Short: "Inspect failing seeds recorded by simulation test runs.",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tests with recorded failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := seedstore.Open(storePath)
		if err != nil {
			return err
		}
		defer store.Close()

		tests, err := store.Tests()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TEST\tFAILURES")
		for _, test := range tests {
			records, err := store.Failures(test)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\n", test, len(records))
		}
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <test>",
	Short: "Show recorded failures for a test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := seedstore.Open(storePath)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Failures(args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no failures recorded for %s\n", args[0])
			return nil
		}

		showLogs, _ := cmd.Flags().GetBool("logs")
		for _, rec := range records {
			fmt.Printf("%s  seed=%d  checksum=%x  %s\n  %s\n",
				rec.ID, rec.Seed, rec.Checksum,
				rec.When.Format("2006-01-02 15:04:05"), rec.Err)
			if showLogs && len(rec.LogOutput) > 0 {
				w := prettylog.NewWriter(os.Stdout)
				out := rec.LogOutput
				for len(out) > 0 {
					idx := bytes.IndexByte(out, '\n')
					if idx == -1 {
						idx = len(out) - 1
					}
					w.Write(out[:idx+1])
					out = out[idx+1:]
				}
			}
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <test>",
	Short: "Delete recorded failures for a test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := seedstore.Open(storePath)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "seeds.db", "path to the seedstore file")
	showCmd.Flags().Bool("logs", false, "print the recorded log output")
	rootCmd.AddCommand(listCmd, showCmd, rmCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
