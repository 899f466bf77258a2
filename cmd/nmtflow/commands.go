package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/ZaguanLabs/nmtflow/config"
	"github.com/ZaguanLabs/nmtflow/internal/app"
	"github.com/ZaguanLabs/nmtflow/processor"
)

// withApp loads the configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, v *viper.Viper, f *flags, fn func(ctx context.Context, a *app.App) error) (err error) {
	cfg, err := config.Load(v, f.cfgFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, app.Options{CacheFile: f.cacheFile, Sanitize: f.sanitize}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, a)
}

// readInput returns the contents of path, or of stdin when path is empty.
func readInput(stdin io.Reader, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - CLI tool reads user-specified files
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// openOutput returns the writer for --output, or stdout.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path) // #nosec G304 - CLI tool writes user-specified files
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// dryRunOutput lists the units a document segments into.
type dryRunOutput struct {
	ContentType string   `json:"content_type"`
	Direction   string   `json:"direction"`
	UnitCount   int      `json:"unit_count"`
	Units       []string `json:"units"`
}

func runDryRun(w io.Writer, proc nmtflow.ContentProcessor, inputs []string, direction string, jsonOut bool) error {
	out := dryRunOutput{ContentType: proc.ContentType(), Direction: direction, Units: []string{}}
	for _, in := range inputs {
		doc, err := proc.Segment(in)
		if err != nil {
			return err
		}
		out.Units = append(out.Units, doc.Texts()...)
	}
	out.UnitCount = len(out.Units)

	if jsonOut {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "Dry run: %s (%s)\n", direction, out.ContentType)
	fmt.Fprintf(w, "Found %d translatable units:\n\n", out.UnitCount)
	for i, u := range out.Units {
		text := u
		if len([]rune(text)) > 60 {
			text = string([]rune(text)[:57]) + "..."
		}
		fmt.Fprintf(w, "%3d. %q\n", i+1, text)
	}
	return nil
}

// diffOutput reports the units that changed between two document versions.
type diffOutput struct {
	Stats            nmtflow.DiffStats `json:"stats"`
	NeedsTranslation []string          `json:"needs_translation"`
}

func runDiff(w io.Writer, proc nmtflow.ContentProcessor, previous, current string, jsonOut bool) error {
	oldDoc, err := proc.Segment(previous)
	if err != nil {
		return err
	}
	newDoc, err := proc.Segment(current)
	if err != nil {
		return err
	}

	diff := nmtflow.DiffDocuments(oldDoc, newDoc)
	out := diffOutput{Stats: diff.Stats(), NeedsTranslation: []string{}}
	for _, u := range diff.NeedsTranslation() {
		out.NeedsTranslation = append(out.NeedsTranslation, u.Text)
	}

	if jsonOut {
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "%d added, %d modified, %d removed, %d unchanged\n",
		out.Stats.Added, out.Stats.Modified, out.Stats.Removed, out.Stats.Unchanged)
	for i, text := range out.NeedsTranslation {
		fmt.Fprintf(w, "%3d. %q\n", i+1, text)
	}
	return nil
}

// TranslateOutput is the JSON output of the translate command.
type TranslateOutput struct {
	Translations []string           `json:"translations"`
	ElapsedMs    int64              `json:"elapsed_ms"`
	Cache        nmtflow.CacheStats `json:"cache"`
}

func newTranslateCommand(v *viper.Viper, f *flags, stdin io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "Translate plain texts (stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if len(texts) == 0 {
				in, err := readInput(stdin, "")
				if err != nil {
					return err
				}
				texts = []string{strings.TrimRight(in, "\n")}
			}

			return withApp(cmd, v, f, func(ctx context.Context, a *app.App) error {
				if f.dryRun {
					return runDryRun(cmd.OutOrStdout(), processor.NewTextProcessor(), texts, cmp.Or(f.direction, a.Config.Direction), f.jsonOut)
				}

				opts, err := a.TranslateOptions(f.direction, f.budget, f.strict, f.formal, nil)
				if err != nil {
					return err
				}
				if err := a.Load(ctx); err != nil {
					return err
				}

				start := time.Now()
				out, err := a.Pipeline.TranslateTexts(ctx, texts, opts)
				if err != nil {
					return fmt.Errorf("translation failed: %w", err)
				}

				w, closeOut, err := openOutput(cmd, f.output)
				if err != nil {
					return err
				}
				defer closeOut()

				if f.jsonOut {
					return writeJSON(w, TranslateOutput{
						Translations: out,
						ElapsedMs:    time.Since(start).Milliseconds(),
						Cache:        a.Pipeline.CacheStats(),
					})
				}
				for _, t := range out {
					fmt.Fprintln(w, t)
				}
				return nil
			})
		},
	}
	translationFlags(cmd, f)
	return cmd
}

// HTMLOutput is the JSON output of the html command.
type HTMLOutput struct {
	Content   string             `json:"content"`
	ElapsedMs int64              `json:"elapsed_ms"`
	Cache     nmtflow.CacheStats `json:"cache"`
}

func newHTMLCommand(v *viper.Viper, f *flags, stdin io.Reader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "html [file]",
		Short: "Translate the text of an HTML document, keeping its markup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			input, err := readInput(stdin, path)
			if err != nil {
				return err
			}

			if f.diffFile != "" {
				previous, err := readInput(stdin, f.diffFile)
				if err != nil {
					return err
				}
				return runDiff(cmd.OutOrStdout(), processor.NewHTMLProcessor(), previous, input, f.jsonOut)
			}

			return withApp(cmd, v, f, func(ctx context.Context, a *app.App) error {
				if f.dryRun {
					return runDryRun(cmd.OutOrStdout(), processor.NewHTMLProcessor(), []string{input}, cmp.Or(f.direction, a.Config.Direction), f.jsonOut)
				}

				opts, err := a.TranslateOptions(f.direction, f.budget, f.strict, f.formal, nil)
				if err != nil {
					return err
				}
				if err := a.Load(ctx); err != nil {
					return err
				}

				start := time.Now()
				out, err := a.Pipeline.TranslateHTML(ctx, input, opts)
				if err != nil {
					return fmt.Errorf("translation failed: %w", err)
				}

				w, closeOut, err := openOutput(cmd, f.output)
				if err != nil {
					return err
				}
				defer closeOut()

				if f.jsonOut {
					return writeJSON(w, HTMLOutput{
						Content:   out,
						ElapsedMs: time.Since(start).Milliseconds(),
						Cache:     a.Pipeline.CacheStats(),
					})
				}
				fmt.Fprint(w, out)
				return nil
			})
		},
	}
	translationFlags(cmd, f)
	cmd.Flags().BoolVar(&f.sanitize, "sanitize", false, "Strip scripts, event handlers and unsafe URLs before translating")
	cmd.Flags().StringVar(&f.diffFile, "diff", "", "Compare with a previous version and list the units that need translation")
	return cmd
}

func newHealthCommand(v *viper.Viper, f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Load the engine and report its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, f, func(ctx context.Context, a *app.App) error {
				loadErr := a.Handle.Load(ctx)
				report := struct {
					Engine nmtflow.HealthReport `json:"engine"`
					Cache  nmtflow.CacheStats   `json:"cache"`
				}{a.Handle.Health(), a.Pipeline.CacheStats()}

				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if loadErr != nil {
					return errors.Join(nmtflow.ErrEngineUnavailable, loadErr)
				}
				return nil
			})
		},
	}
}

func newCacheCommand(v *viper.Viper, f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the translation cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show cache statistics",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, v, f, func(ctx context.Context, a *app.App) error {
					return writeJSON(cmd.OutOrStdout(), a.Pipeline.CacheStats())
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached translation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, v, f, func(ctx context.Context, a *app.App) error {
					return writeJSON(cmd.OutOrStdout(), a.Pipeline.ClearCache())
				})
			},
		},
	)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s\n", nmtflow.Name, nmtflow.FullVersion())
			if nmtflow.GitCommit != "unknown" && nmtflow.GitCommit != "" {
				fmt.Fprintf(w, "  commit:  %s\n", nmtflow.GitCommit)
			}
			if nmtflow.BuildDate != "unknown" && nmtflow.BuildDate != "" {
				fmt.Fprintf(w, "  built:   %s\n", nmtflow.BuildDate)
			}
		},
	}
}
