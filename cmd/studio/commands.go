package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gabriel-vasile/mimetype"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"studio/internal/analytics"
	"studio/internal/app"
	"studio/internal/citation"
	"studio/internal/config"
	"studio/internal/devserver"
	"studio/internal/domain"
	"studio/internal/index"
	"studio/internal/library"
	"studio/internal/tui"
	"studio/internal/upload"
)

const seedSource = "Local File"

func runTUI(ctx context.Context, e *env) error {
	notices := &tui.Notices{}
	a, err := e.open(false, notices)
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(ctx, a, a.Client, notices)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func newUploadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a PDF to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			c, err := upload.Inspect(upload.NormalizePath(args[0]))
			if err != nil {
				return err
			}
			if err := a.Upload.SelectFile(c); err != nil {
				return fmt.Errorf("%s (%s): %w", c.Name, c.MIMEType, err)
			}
			err = a.Upload.Submit(cmd.Context(), a.Client, func(t domain.UploadTask) {
				if t.Status == domain.UploadUploading {
					fmt.Fprintf(out, "\rUploading %s %3d%%", c.Name, t.Progress)
				} else {
					fmt.Fprintln(out)
				}
			})
			if err != nil {
				return err
			}

			task := a.Upload.Task()
			if task.Status != domain.UploadSucceeded {
				return errors.New(task.Error)
			}
			fmt.Fprintln(out, "Upload complete")
			printUploadResult(out, *task.Result)
			return nil
		},
	}
}

func printUploadResult(w io.Writer, r domain.UploadResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", r.FileName)
	fmt.Fprintf(tw, "Paper ID:\t%s\n", r.PaperID)
	fmt.Fprintf(tw, "Embedding ID:\t%s\n", r.EmbeddingID)
	fmt.Fprintf(tw, "Chunks:\t%d\n", r.Chunks)
	_ = tw.Flush()
	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", r.Summary)
	}
}

func newChatCmd(e *env) *cobra.Command {
	var interactive bool
	cmd := &cobra.Command{
		Use:   "chat [MESSAGE...]",
		Short: "Ask the library a question",
		Long:  "chat sends one message and prints the cited answer. Without a message, or with\n--interactive, it reads one message per line from stdin until EOF.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			msg := strings.Join(args, " ")
			if msg != "" && !interactive {
				return ask(cmd.Context(), a, out, msg)
			}
			for _, t := range a.Chat.Transcript() {
				fmt.Fprintln(out, t.Content)
			}
			if msg != "" {
				if err := ask(cmd.Context(), a, out, msg); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !sc.Scan() {
					fmt.Fprintln(out)
					return sc.Err()
				}
				if err := ask(cmd.Context(), a, out, sc.Text()); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "keep reading messages from stdin")
	return cmd
}

func ask(ctx context.Context, a *app.App, w io.Writer, msg string) error {
	turn, err := a.Chat.SendMessage(ctx, a.Client, msg)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, turn.Content)
	for _, line := range citation.Lines(turn.Citations) {
		fmt.Fprintln(w, "  "+line)
	}
	return nil
}

func newLibraryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "library [QUERY]",
		Short: "List papers, optionally filtered by title or source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			a.Library.Refresh(cmd.Context(), a.Client)
			if msg := a.Library.Err(); msg != "" {
				return errors.New(msg)
			}
			if len(args) == 1 {
				a.Library.SetQuery(args[0])
			}
			printLibrary(cmd.OutOrStdout(), a.Library)
			return nil
		},
	}
}

func printLibrary(w io.Writer, v *library.ViewModel) {
	if len(v.All()) == 0 {
		fmt.Fprintln(w, library.EmptyText)
		return
	}
	entries := v.Visible()
	if len(entries) == 0 {
		fmt.Fprintf(w, "No papers match %q.\n", v.Query())
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "YEAR", "AUTHORS", "SOURCE")
	for _, en := range entries {
		t.Row(en.ID, en.Title, library.Year(en), en.Authors, en.Source)
	}
	fmt.Fprintln(w, t.Render())
}

func newAnalyticsCmd(e *env) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show library analytics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.open(true, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			show := func() {
				a.Analytics.Refresh(cmd.Context(), a.Client)
				printAnalytics(out, a.Analytics)
			}
			show()
			if !watch {
				if msg := a.Analytics.Err(); msg != "" {
					return errors.New(msg)
				}
				return nil
			}

			sched, err := a.Config.Analytics.Schedule()
			if err != nil {
				return err
			}
			if sched == nil {
				return errors.New("--watch needs analytics.refresh_schedule")
			}
			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			c.Schedule(sched, cron.FuncJob(func() {
				fmt.Fprintln(out)
				show()
			}))
			c.Start()
			<-cmd.Context().Done()
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "refresh on analytics.refresh_schedule until interrupted")
	return cmd
}

func printAnalytics(w io.Writer, v *analytics.ViewModel) {
	if msg := v.Err(); msg != "" {
		fmt.Fprintln(w, msg)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range append(v.Overview(), v.Insights()...) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Title, c.Value, c.Hint)
	}
	_ = tw.Flush()
	printBars(w, "Topics", v.TopicBars())
	printBars(w, "Sources", v.SourceBars())
}

func printBars(w io.Writer, title string, bars []analytics.Bar) {
	if len(bars) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, b := range bars {
		fmt.Fprintf(tw, "%s\t%s %d\n", b.Label, strings.Repeat("#", b.Width/5), b.Value)
	}
	_ = tw.Flush()
}

func newServeCmd(e *env) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [FILE...]",
		Short: "Run the local development backend",
		Long:  "serve runs an in-memory research backend. Files given as arguments are\ningested before the server starts; PDFs are read for text, anything else as plain text.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(true); err != nil {
				return err
			}
			defer func() { _ = e.log.Sync() }()

			dc := e.cfg.DevServer
			idx := index.New(index.Options{
				TopK:              dc.TopK,
				AnswerSentences:   dc.AnswerSentences,
				SentencesPerChunk: dc.SentencesPerChunk,
				OverlapSentences:  dc.OverlapSentences,
			})
			if err := seed(idx, args, e.log); err != nil {
				return err
			}
			if addr == "" {
				addr = dc.Addr
			}
			return devserver.New(idx, nil, e.log.Named("devserver")).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides devserver.addr")
	return cmd
}

// seed ingests local files into idx before serving.
func seed(idx *index.Index, paths []string, log *zap.Logger) error {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		text := string(data)
		if mimetype.Detect(data).Is(domain.AcceptedMIMEType) {
			if text, err = devserver.ExtractText(data); err != nil {
				return fmt.Errorf("extracting %s: %w", p, err)
			}
		}
		paper, err := idx.Add(filepath.Base(p), seedSource, text)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", p, err)
		}
		log.Info("seeded paper", zap.String("file", p), zap.Int("chunks", paper.Chunks))
	}
	return nil
}

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.load(false); err != nil {
				return err
			}
			data, err := yaml.Marshal(e.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "studio.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
