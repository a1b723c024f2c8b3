// Package main contains the cli inspector for the database. It uses
// the cobra package for cli tool implementation, the same way the
// teacher's own cmd/smf does.
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smfdb/internal/config"
	"smfdb/internal/coltype"
	"smfdb/internal/keys"
	"smfdb/internal/notify"
	"smfdb/internal/query/compiler"
	"smfdb/internal/query/lang"
	"smfdb/internal/schema"
	"smfdb/internal/store"
	"smfdb/internal/syncclient"
)

type queryFlags struct {
	order string
}

type resetFlags struct {
	mode string
}

type inspectFlags struct {
	configFile string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "smfdb",
		Short: "Inspect and exercise an embedded object store",
	}

	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// demoLibrary builds the Author/Book sample schema used throughout
// internal/store's and internal/query/compiler's tests, seeded with a
// few rows, so the CLI has
// something to query, watch, and inspect without requiring a config
// file or an on-disk store (persistence itself is a Non-goal, §1).
func demoLibrary() (*store.DB, *schema.Table, *schema.Table) {
	sc := schema.NewDatabase()
	authors, _ := sc.AddTable("Author")
	_, _ = authors.AddColumn("name", coltype.String, keys.AttrNone)
	_ = authors.SetPrimaryKey("name")

	books, _ := sc.AddTable("Book")
	_, _ = books.AddColumn("title", coltype.String, keys.AttrNone)
	_, _ = books.AddColumn("price", coltype.Double, keys.AttrNone)
	_, _ = books.AddLinkColumn("author", authors, keys.AttrNullable)

	db := store.NewDB(sc)
	wt := db.BeginWrite()

	herbert, _ := wt.CreateObject(authors.Key)
	if o, err := wt.GetObject(authors.Key, herbert); err == nil {
		_ = o.SetString("name", "Frank Herbert")
	}
	asimov, _ := wt.CreateObject(authors.Key)
	if o, err := wt.GetObject(authors.Key, asimov); err == nil {
		_ = o.SetString("name", "Isaac Asimov")
	}

	seed := []struct {
		title  string
		price  float64
		author keys.ObjKey
	}{
		{"Dune", 12.50, herbert},
		{"Dune Messiah", 11.00, herbert},
		{"Foundation", 9.50, asimov},
	}
	for _, s := range seed {
		obj, _ := wt.CreateObject(books.Key)
		o, err := wt.GetObject(books.Key, obj)
		if err != nil {
			continue
		}
		_ = o.SetString("title", s.title)
		_ = o.Set("price", coltype.DoubleValue(s.price))
		author, err := wt.GetObject(authors.Key, s.author)
		if err == nil {
			_ = o.SetLinkedObject("author", author)
		}
	}
	_ = wt.Commit()

	return db, authors, books
}

func queryCmd() *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <predicate>",
		Short: "Compile a predicate and list the Book rows it matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runQuery(args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.order, "order", "", `Descriptor chain to apply before printing, e.g. "SORT(price DESC) LIMIT(2)"`)
	return cmd
}

func runQuery(predSrc string, flags *queryFlags) error {
	db, _, books := demoLibrary()

	pred, err := lang.Parse(predSrc)
	if err != nil {
		return fmt.Errorf("parse predicate: %w", err)
	}
	compiled, err := compiler.Compile(db.Schema, books, pred, nil)
	if err != nil {
		return fmt.Errorf("compile predicate: %w", err)
	}

	rt := db.BeginRead()
	results := rt.ResultsFor(books.Key).Filter(compiled)
	if flags.order != "" {
		ordering, err := lang.ParseDescriptorOrdering(flags.order)
		if err != nil {
			return fmt.Errorf("parse order: %w", err)
		}
		applyOrdering, err := compiler.CompileOrdering(db.Schema, books, ordering)
		if err != nil {
			return fmt.Errorf("compile order: %w", err)
		}
		results = applyOrdering(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "title\tprice")
	for _, obj := range results.Snapshot() {
		o, err := rt.GetObject(books.Key, obj)
		if err != nil {
			continue
		}
		title, _ := o.GetString("title")
		price, _ := o.Get("price")
		fmt.Fprintf(w, "%s\t%s\n", title, price.String())
	}
	return w.Flush()
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to Book changes, make one write, and print the delivered ChangeSet",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWatch()
		},
	}
}

func runWatch() error {
	db, _, books := demoLibrary()
	notifier := notify.NewNotifier(db)

	notifier.Subscribe(notify.InlineScheduler(), func(changes map[keys.TableKey]*notify.ChangeSet) {
		cs, ok := changes[books.Key]
		if !ok {
			return
		}
		fmt.Printf("version %d: %d insertion(s), %d deletion(s), %d modified object(s)\n",
			cs.Version, len(cs.Insertions), len(cs.Deletions), len(cs.Modifications))
	}, books.Key)

	wt := db.BeginWrite()
	obj, err := wt.CreateObject(books.Key)
	if err != nil {
		return err
	}
	o, err := wt.GetObject(books.Key, obj)
	if err != nil {
		return err
	}
	if err := o.SetString("title", "Children of Dune"); err != nil {
		return err
	}
	if err := o.Set("price", coltype.DoubleValue(13.0)); err != nil {
		return err
	}
	return wt.Commit()
}

func resetCmd() *cobra.Command {
	flags := &resetFlags{}
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drive a client-reset controller through its state machine and print each transition",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runReset(flags)
		},
	}
	cmd.Flags().StringVar(&flags.mode, "mode", "discard_local", "Reset mode: discard_local, recover_local, or recover_or_discard")
	return cmd
}

func runReset(flags *resetFlags) error {
	mode, err := parseResetMode(flags.mode)
	if err != nil {
		return err
	}

	c := syncclient.NewResetController()
	report := func(step string) { fmt.Printf("%-18s -> %s\n", step, c.State()) }

	if err := c.BeginDivergence(mode); err != nil {
		return err
	}
	report("begin_divergence")

	if err := c.DownloadFresh(func() error { return nil }); err != nil {
		return err
	}
	report("download_fresh")

	recovered, discarded, err := c.Merge(nil)
	if err != nil {
		return err
	}
	fmt.Printf("merge: recovered=%d discarded=%d\n", recovered, discarded)
	report("merge")

	if err := c.Upload(func() error { return nil }); err != nil {
		return err
	}
	report("upload")

	return nil
}

func parseResetMode(raw string) (syncclient.ResetMode, error) {
	switch raw {
	case "discard_local":
		return syncclient.DiscardLocal, nil
	case "recover_local":
		return syncclient.RecoverLocal, nil
	case "recover_or_discard":
		return syncclient.RecoverOrDiscard, nil
	default:
		return 0, fmt.Errorf("unrecognized reset mode %q", raw)
	}
}

func inspectCmd() *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the schema's tables and columns, optionally loading a TOML config first",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInspect(flags)
		},
	}
	cmd.Flags().StringVar(&flags.configFile, "config", "", "Path to a TOML config file to validate and print before inspecting the demo schema")
	return cmd
}

func runInspect(flags *inspectFlags) error {
	if flags.configFile != "" {
		cfg, err := config.LoadFile(flags.configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		fmt.Printf("database.path = %s\n", cfg.Open.Path)
		if cfg.Sync != nil {
			fmt.Printf("sync.server_url = %s\nsync.reset_mode = %s\n", cfg.Sync.ServerURL, cfg.Sync.ResetMode)
		}
		fmt.Println()
	}

	db, _, _ := demoLibrary()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "table\tcolumn\tkind\tattrs")
	for _, t := range db.Schema.Tables {
		for _, c := range t.Columns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, c.Name, c.Kind, describeAttrs(c))
		}
	}
	return w.Flush()
}

func describeAttrs(c *schema.Column) string {
	switch {
	case c.IsList():
		return "list"
	case c.IsSet():
		return "set"
	case c.IsDict():
		return "dictionary"
	case c.Nullable():
		return "nullable"
	default:
		return "-"
	}
}
