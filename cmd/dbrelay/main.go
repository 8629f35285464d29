// Command dbrelay runs SQL statements through a full client/processor pair
// against a configured SQLite database. It exists mostly as a smoke-test
// surface for the relay protocol.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbrelay/dbrelay/client"
	"github.com/dbrelay/dbrelay/config"
	"github.com/dbrelay/dbrelay/processor"
	"github.com/dbrelay/dbrelay/protocol"
	"github.com/dbrelay/dbrelay/transport"
)

const version = "0.1.0"

type rootOptions struct {
	ConfigPath string
	Database   string
	Readonly   bool
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "dbrelay",
		Short: "Message-passing relay to an embedded SQLite database",
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config; empty = in-memory)")
	cmd.PersistentFlags().BoolVar(&opts.Readonly, "readonly", false, "open the database read-only")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose statement logging")

	cmd.AddCommand(newExecCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dbrelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dbrelay %s\n", version)
		},
	}
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec SQL...",
		Short: "Execute statements and print result records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, opts, args)
		},
		SilenceUsage: true,
	}
}

func resolveSettings(opts *rootOptions) (protocol.Settings, error) {
	settings := protocol.DefaultSettings()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return protocol.Settings{}, err
		}
		settings = loaded
	}
	if opts.Database != "" {
		settings.Path = opts.Database
		settings.StorageScope = ""
	}
	if opts.Readonly {
		settings.Readonly = true
	}
	if opts.Verbose {
		settings.Verbose = true
	}
	return settings, nil
}

func runExec(cmd *cobra.Command, opts *rootOptions, statements []string) error {
	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	conn, endpoint := transport.Pipe()
	proc := processor.New(endpoint, processor.WithLogger(logger))
	go proc.Run()

	c := client.New(conn, settings, client.WithLogger(logger))
	defer c.Destroy()

	out := cmd.OutOrStdout()
	for _, sql := range statements {
		records, err := c.Query(sql)
		if err != nil {
			return fmt.Errorf("exec %q: %w", sql, err)
		}
		for _, rec := range records {
			for i, col := range rec.Columns() {
				if i > 0 {
					fmt.Fprint(out, "\t")
				}
				val, _ := rec.Get(col)
				fmt.Fprintf(out, "%s=%v", col, val)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
