package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/scrape"
	"github.com/flemzord/parserdesk/internal/security"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/pkg/app"
)

func parserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "parser",
		Aliases: []string{"parsers"},
		Short:   "Manage saved parsers",
	}
	cmd.AddCommand(parserListCmd(), parserShowCmd(), parserNewCmd(), parserMatchCmd(), parserExportCmd(), parserDeleteCmd())
	return cmd
}

// withStore builds a runtime without the gateway or background jobs and
// runs fn against its parser store.
func withStore(cmd *cobra.Command, fn func(context.Context, *app.Runtime) error) error {
	ctx := cmd.Context()
	rt, err := app.Build(ctx, params(cmd, "gateway", "cron"))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()
	if rt.Store == nil {
		return session.ErrNoStore
	}
	if err := rt.Start(); err != nil {
		return err
	}
	return fn(ctx, rt)
}

func parserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved parsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				recs, err := rt.Store.List(ctx)
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), recs)
			})
		},
	}
}

func printRecords(w io.Writer, recs []record.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No saved parsers.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tURL PATTERN\tUPDATED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.URLPattern, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func parserShowCmd() *cobra.Command {
	var chat bool
	cmd := &cobra.Command{
		Use:   "show <name|id>",
		Short: "Print a saved parser as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				rec, err := lookupRecord(ctx, rt.Store, args[0])
				if err != nil {
					return err
				}
				if !chat {
					rec.ChatData = nil
				}
				return writeIndented(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().BoolVar(&chat, "chat", false, "Include the saved conversation")
	return cmd
}

func parserMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <url>",
		Short: "Find the saved parser whose URL pattern matches url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				rec, err := record.Match(ctx, rt.Store, args[0])
				if err != nil {
					return err
				}
				return printRecords(cmd.OutOrStdout(), []record.Record{rec})
			})
		},
	}
}

// exported is the portable form of a parser: what a scraper needs to run it.
type exported struct {
	Name         string          `json:"name"`
	URLPattern   string          `json:"url_pattern"`
	ParserConfig json.RawMessage `json:"parser_config"`
}

func parserExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <name|id>",
		Short: "Write a parser's pattern and configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				rec, err := lookupRecord(ctx, rt.Store, args[0])
				if err != nil {
					return err
				}
				v := exported{Name: rec.Name, URLPattern: rec.URLPattern, ParserConfig: rec.ParserConfig}
				if output == "" || output == "-" {
					return writeIndented(cmd.OutOrStdout(), v)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := writeIndented(f, v); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func parserDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <name|id>",
		Short: "Delete a saved parser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				rec, err := lookupRecord(ctx, rt.Store, args[0])
				if err != nil {
					return err
				}
				if !yes {
					confirmed := false
					err := huh.NewConfirm().
						Title(fmt.Sprintf("Delete parser %q?", rec.Name)).
						Affirmative("Delete").
						Negative("Cancel").
						Value(&confirmed).
						Run()
					if err != nil {
						return err
					}
					if !confirmed {
						return nil
					}
				}
				if err := rt.Store.Delete(ctx, rec.ID); err != nil {
					return err
				}
				rt.Audit.Log(security.AuditEvent{
					Type:   security.EventParserDelete,
					Detail: strconv.FormatInt(rec.ID, 10),
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q.\n", rec.Name)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

// newParser holds the fields of a hand-written parser.
type newParser struct {
	Name       string
	URLPattern string
	scrape.ParserConfig
	Description string
}

// record builds and validates the record for n.
func (n newParser) record() (record.Record, error) {
	cfg, err := record.Encode(n.ParserConfig)
	if err != nil {
		return record.Record{}, err
	}
	meta, err := record.Encode(record.MetaData{LastUpdated: time.Now().UTC(), Description: n.Description})
	if err != nil {
		return record.Record{}, err
	}
	rec := record.Record{
		Name:         strings.TrimSpace(n.Name),
		URLPattern:   n.URLPattern,
		ParserConfig: cfg,
		MetaData:     meta,
	}
	return rec, rec.Validate()
}

func parserNewCmd() *cobra.Command {
	var n newParser
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a parser without a design session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n.Name == "" || n.URLPattern == "" {
				if err := askParser(&n); err != nil {
					return err
				}
			}
			rec, err := n.record()
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Store.Create(ctx, &rec); err != nil {
					return err
				}
				rt.Audit.Log(security.AuditEvent{
					Type:   security.EventParserSave,
					Detail: strconv.FormatInt(rec.ID, 10),
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Created %q (id %d).\n", rec.Name, rec.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&n.Name, "name", "", "Parser name")
	f.StringVar(&n.URLPattern, "url-pattern", "", "Regular expression matched against page URLs")
	f.StringVar(&n.Type, "type", scrape.TypeList, "Parser type: list or content")
	f.StringVar(&n.Selector, "selector", "", "List item selector")
	f.StringVar(&n.Attribute, "attribute", "", "Attribute read from list items (default text)")
	f.StringVar(&n.TitleSelector, "title", "", "Title selector (content parsers)")
	f.StringVar(&n.DateSelector, "date", "", "Date selector (content parsers)")
	f.StringVar(&n.BodySelector, "body", "", "Body selector (content parsers)")
	f.StringVar(&n.Description, "description", "", "Free-form description")
	return cmd
}

func askParser(n *newParser) error {
	confirmed := true
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Parser name").Value(&n.Name).Validate(required("name")),
			huh.NewInput().Title("URL pattern").Value(&n.URLPattern).Validate(required("URL pattern")),
			huh.NewSelect[string]().
				Title("Parser type").
				Options(
					huh.NewOption("List page", scrape.TypeList),
					huh.NewOption("Content page", scrape.TypeContent),
				).
				Value(&n.Type),
		),
		huh.NewGroup(
			huh.NewInput().Title("Item selector").Value(&n.Selector).Validate(required("selector")),
			huh.NewInput().Title("Attribute").Description("Empty reads the element text").Value(&n.Attribute),
		).WithHideFunc(func() bool { return n.Type != scrape.TypeList }),
		huh.NewGroup(
			huh.NewInput().Title("Title selector").Value(&n.TitleSelector),
			huh.NewInput().Title("Date selector").Value(&n.DateSelector),
			huh.NewInput().Title("Body selector").Value(&n.BodySelector),
		).WithHideFunc(func() bool { return n.Type != scrape.TypeContent }),
		huh.NewGroup(
			huh.NewInput().Title("Description").Value(&n.Description),
			huh.NewConfirm().Title("Save this parser?").Value(&confirmed),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirmed {
		return huh.ErrUserAborted
	}
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
