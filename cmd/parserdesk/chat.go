package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/record"
	"github.com/flemzord/parserdesk/internal/session"
	"github.com/flemzord/parserdesk/pkg/app"
)

const chatHelp = `Commands:
  /save [name]   save the parser (asks for missing fields)
  /state         show the workflow state and memory
  /resume        jump to the furthest state memory supports
  /log           show the memory operation log
  /help          show this help
  /quit          leave (autosaves a bound parser when enabled)`

func chatCmd() *cobra.Command {
	var (
		parser  string
		stream  bool
		noFocus bool
		model   string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Design a parser interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := app.Build(ctx, params(cmd, "gateway"))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()
			if err := rt.Start(); err != nil {
				return err
			}

			sess, err := openSession(ctx, rt.Sessions, rt.Store, parser)
			if err != nil {
				return err
			}

			r := &repl{
				sessions: rt.Sessions,
				session:  sess,
				in:       cmd.InOrStdin(),
				out:      cmd.OutOrStdout(),
				stream:   stream,
				ask:      askSaveFields,
			}
			if model != "" {
				r.opts.Model = model
			}
			if noFocus {
				focus := false
				r.opts.FocusMode = &focus
			}
			if !stream {
				if r.render, err = newMarkdownRenderer(); err != nil {
					rt.Logger.Warn("markdown rendering disabled", "error", err)
				}
			}
			return r.run(ctx)
		},
	}
	cmd.Flags().StringVarP(&parser, "parser", "p", "", "Reopen a saved parser by name or ID")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream replies as they are generated")
	cmd.Flags().BoolVar(&noFocus, "no-focus", false, "Disable focus mode for this session")
	cmd.Flags().StringVar(&model, "model", "", "Override the model for this session")
	return cmd
}

// openSession creates a session, or reopens the record named by ref.
func openSession(ctx context.Context, m *session.Manager, store record.Store, ref string) (*session.Session, error) {
	if ref == "" {
		return m.Create(ctx)
	}
	if store == nil {
		return nil, session.ErrNoStore
	}
	rec, err := lookupRecord(ctx, store, ref)
	if err != nil {
		return nil, err
	}
	return m.Open(ctx, rec.ID)
}

// lookupRecord resolves ref as an ID first, then as a name.
func lookupRecord(ctx context.Context, store record.Store, ref string) (record.Record, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		rec, err := store.Get(ctx, id)
		if err == nil || !errors.Is(err, record.ErrNotFound) {
			return rec, err
		}
	}
	return store.GetByName(ctx, ref)
}

func newMarkdownRenderer() (func(string) string, error) {
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return nil, err
	}
	return func(s string) string {
		out, err := tr.Render(s)
		if err != nil {
			return s
		}
		return out
	}, nil
}

// repl is the line-oriented chat loop.
type repl struct {
	sessions *session.Manager
	session  *session.Session
	in       io.Reader
	out      io.Writer
	opts     agent.Options
	stream   bool
	// render formats a complete reply. nil prints it as is.
	render func(string) string
	// ask fills the missing fields of a save request.
	ask func(*session.SaveRequest) error
}

func (r *repl) run(ctx context.Context) error {
	info := r.session.Info()
	if info.ParserName != "" {
		fmt.Fprintf(r.out, "Reopened %q in state %s.\n", info.ParserName, info.State)
	} else {
		fmt.Fprintf(r.out, "Session %s. Describe the site you want to parse. /help for commands.\n", info.ID)
	}

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintln(r.out, "error:", err)
			}
			if quit {
				break
			}
			continue
		}
		if err := r.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintln(r.out, "error:", agent.UserMessage(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return r.finish(context.WithoutCancel(ctx))
}

// finish autosaves a bound session with unsaved changes.
func (r *repl) finish(ctx context.Context) error {
	if !r.sessions.Autosave() || r.session.ParserID() == 0 || !r.session.Dirty() {
		return nil
	}
	rec, err := r.sessions.Save(ctx, r.session.ID(), session.SaveRequest{})
	if err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	fmt.Fprintf(r.out, "Saved %q.\n", rec.Name)
	return nil
}

func (r *repl) turn(ctx context.Context, input string) error {
	if !r.stream {
		reply, err := r.session.Converse(ctx, input, r.opts)
		if err != nil {
			return err
		}
		r.printFunctions(reply.Functions)
		text := reply.Text
		if r.render != nil {
			text = r.render(text)
		}
		fmt.Fprintln(r.out, text)
		return nil
	}

	opts := r.opts
	opts.Stream = true
	events, err := r.session.ConverseStream(ctx, input, opts)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Type {
		case agent.EventText:
			fmt.Fprint(r.out, ev.Text)
		case agent.EventFunction:
			r.printFunctions([]agent.FunctionCall{*ev.Function})
		case agent.EventError:
			fmt.Fprintln(r.out)
			return ev.Err
		case agent.EventDone:
			fmt.Fprintln(r.out)
		}
	}
	return nil
}

func (r *repl) printFunctions(calls []agent.FunctionCall) {
	for _, fc := range calls {
		fmt.Fprintf(r.out, "  [%s %s]\n", fc.Name, fc.Duration.Round(time.Millisecond))
	}
}

// command handles a slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/state":
		info := r.session.Info()
		fmt.Fprintf(r.out, "state: %s\n", info.State)
		mem := r.session.Conversation().Memory().Snapshot()
		if len(mem) == 0 {
			fmt.Fprintln(r.out, "memory: empty")
			return false, nil
		}
		data, err := json.MarshalIndent(mem, "", "  ")
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "memory: %s\n", data)
	case "/resume":
		state, ok := r.session.Resume()
		if !ok {
			conv := r.session.Conversation()
			target := conv.Machine().ResumeTarget()
			missing := conv.Memory().Missing(target.Requires()...)
			fmt.Fprintf(r.out, "Cannot resume at %s, missing %s. Now at %s.\n",
				target, strings.Join(missing, ", "), state)
			return false, nil
		}
		fmt.Fprintf(r.out, "Resumed at %s.\n", state)
	case "/log":
		for _, e := range r.session.Conversation().Memory().Log().Entries() {
			keys := slices.Sorted(maps.Keys(e.Payload))
			fmt.Fprintf(r.out, "%s %s %s\n", e.At.Format("15:04:05"), e.Kind, strings.Join(keys, ","))
		}
	case "/save":
		return false, r.save(ctx, arg)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (r *repl) save(ctx context.Context, name string) error {
	req := session.SaveRequest{Name: name}
	if r.session.ParserID() == 0 && r.ask != nil {
		if err := r.ask(&req); err != nil {
			return err
		}
	}
	rec, err := r.sessions.Save(ctx, r.session.ID(), req)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved %q (id %d).\n", rec.Name, rec.ID)
	return nil
}

// askSaveFields prompts for the fields a first save needs.
func askSaveFields(req *session.SaveRequest) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Parser name").
				Value(&req.Name).
				Validate(required("name")),
			huh.NewInput().
				Title("URL pattern").
				Description("Regular expression matched against page URLs").
				Value(&req.URLPattern).
				Validate(required("URL pattern")),
			huh.NewInput().
				Title("Description").
				Value(&req.Description),
		),
	)
	return form.Run()
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
