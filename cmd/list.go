package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meko-christian/mail-listener/internal/processor"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the mails stored by the sqlite processor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			dbPath = viper.GetString("processor.sqlite_path")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("no message database at %s: %w", dbPath, err)
		}

		sink, err := processor.NewSQLiteSink(dbPath)
		if err != nil {
			return err
		}
		defer sink.Close()

		withAttachments, _ := cmd.Flags().GetBool("attachments")
		return printStored(cmd.Context(), os.Stdout, sink, withAttachments)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().String("db", "", "SQLite database to read (default processor.sqlite_path)")
	listCmd.Flags().Bool("attachments", false, "Show the saved attachment paths of every mail")
}

func printStored(ctx context.Context, out io.Writer, sink *processor.SQLiteSink, withAttachments bool) error {
	msgs, err := sink.Messages(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCRAPED\tFOLDER\tUID\tFROM\tSUBJECT")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			m.ScrapedAt.Local().Format("2006-01-02 15:04"), m.Folder, m.UID, m.Sender, m.Subject)

		if !withAttachments {
			continue
		}
		paths, err := sink.Attachments(ctx, m.Key)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(tw, "\t\t\t\t  %s\n", p)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d message(s)\n", len(msgs))
	return nil
}
