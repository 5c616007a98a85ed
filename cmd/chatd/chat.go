package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"chatcore/internal/manager"
	"chatcore/pkg/types"
)

func newChatCmd(opts *globalOpts) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a model at an interactive prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.DefaultModel = model
			}
			level := cfg.LogLevel
			if opts.logLevel == "" && os.Getenv("CHATD_LOG_LEVEL") == "" {
				level = "warn"
			}
			log := newLogger(level, true, os.Stderr)

			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := a.Close(closeCtx); err != nil {
					log.Warn().Err(err).Msg("close")
				}
			}()
			out := cmd.OutOrStdout()
			if id := a.startupModel(); id != "" {
				fmt.Fprintf(out, "loading %s...\n", id)
			}
			if err := a.restore(ctx); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			return runChat(ctx, a, out)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model file to load (defaults to the last one used)")
	return cmd
}

// prompter wraps liner with a persistent history file.
type prompter struct {
	line        *liner.State
	historyFile string
}

func newPrompter(historyFile string) *prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	p := &prompter{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return p
}

func (p *prompter) read(prompt string) (string, error) {
	input, err := p.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

func (p *prompter) Close() {
	if f, err := os.OpenFile(p.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
		_, _ = p.line.WriteHistory(f)
		f.Close()
	}
	p.line.Close()
}

func runChat(ctx context.Context, a *app, out io.Writer) error {
	p := newPrompter(a.paths.HistoryFile())
	defer p.Close()

	// liner handles Ctrl-C at the prompt; while a reply streams it arrives
	// as a signal and stops the running task.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	fmt.Fprintln(out, "Type /help for commands.")
	for {
		input, err := p.read(promptLabel(a.mgr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		cmd, err := parseCommand(input)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if cmd.kind == cmdQuit {
			return nil
		}
		if cmd.kind != cmdNone {
			if err := runCommand(ctx, a, cmd, out); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
			continue
		}
		streamReply(ctx, a.mgr, input, out, sigs)
	}
}

func promptLabel(m *manager.Manager) string {
	if id := currentModel(m); id != "" {
		return strings.TrimSuffix(id, ".gguf") + "> "
	}
	return "(no model)> "
}

func currentModel(m *manager.Manager) string {
	if cur := m.Snapshot().CurrentModel; cur != nil {
		return cur.ID
	}
	return ""
}

// streamReply prints tokens as they arrive and a one-line summary.
func streamReply(ctx context.Context, m *manager.Manager, text string, out io.Writer, sigs <-chan os.Signal) {
	// Drop interrupts that arrived while the prompt was idle.
	for len(sigs) > 0 {
		<-sigs
	}
	task := m.Submit(ctx, text, func(tok string) { fmt.Fprint(out, tok) })
	select {
	case <-task.Done():
	case <-sigs:
		task.Cancel()
		<-task.Done()
	}
	o, err := task.Result()
	fmt.Fprintln(out)
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "[%d tokens in %s, %.1f tok/s, %s]\n",
		o.GeneratedTokens, o.Duration.Round(time.Millisecond), o.TokensPerSecond(), o.Reason)
}

func runCommand(ctx context.Context, a *app, cmd command, out io.Writer) error {
	switch cmd.kind {
	case cmdHelp:
		fmt.Fprintln(out, chatHelp)
	case cmdClear:
		if err := a.mgr.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "conversation cleared")
	case cmdModels:
		models, err := a.mgr.RefreshModels()
		if err != nil {
			return err
		}
		printModels(out, models, currentModel(a.mgr))
	case cmdModel:
		fmt.Fprintf(out, "loading %s...\n", cmd.arg)
		if err := a.mgr.Switch(ctx, cmd.arg); err != nil {
			return err
		}
	case cmdTokens:
		s, err := a.mgr.UpdateSettings(ctx, types.SettingsUpdate{MaxTokens: &cmd.num})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "max tokens: %d\n", s.MaxTokens)
	case cmdTemp:
		s, err := a.mgr.UpdateSettings(ctx, types.SettingsUpdate{Temperature: &cmd.value})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "temperature: %g\n", s.Temperature)
	case cmdFormat:
		s, err := a.mgr.UpdateSettings(ctx, types.SettingsUpdate{UsePromptFormat: &cmd.on})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "prompt format: %v (%s)\n", s.UsePromptFormat, s.PromptFormat)
	case cmdStatus:
		st := a.mgr.Status()
		fmt.Fprintf(out, "state: %s\n", st.State)
		if st.Model != "" {
			fmt.Fprintf(out, "model: %s (template: %v)\n", st.Model, st.TemplateActive)
			fmt.Fprintf(out, "context: %s / %s tokens\n", humanize.Comma(int64(st.ContextUsed)), humanize.Comma(int64(st.ContextCapacity)))
		}
		if st.LastError != "" {
			fmt.Fprintf(out, "last error: %s\n", st.LastError)
		}
	case cmdHistory:
		tr, err := a.mgr.Transcript(ctx, cmd.num)
		if err != nil {
			return err
		}
		printTranscript(out, tr)
	}
	return nil
}

func printTranscript(out io.Writer, tr types.TranscriptResponse) {
	if len(tr.Messages) == 0 {
		fmt.Fprintln(out, "(empty)")
		return
	}
	for _, m := range tr.Messages {
		when := humanize.Time(time.UnixMilli(m.CreatedAt))
		fmt.Fprintf(out, "[%s, %s] %s\n", m.Role, when, m.Content)
	}
}
