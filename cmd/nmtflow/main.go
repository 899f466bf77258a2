// Command nmtflow translates text and HTML through the nmtflow pipeline.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZaguanLabs/nmtflow"
	"github.com/ZaguanLabs/nmtflow/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds per-invocation options that are not part of the config file.
type flags struct {
	cfgFile   string
	direction string
	formal    bool
	budget    int
	strict    bool
	output    string
	jsonOut   bool
	dryRun    bool
	sanitize  bool
	diffFile  string
	cacheFile string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	root := newRootCommand(config.New(), stdin)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.Execute()
}

func newRootCommand(v *viper.Viper, stdin io.Reader) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "nmtflow",
		Short: nmtflow.Description,
		Long: `nmtflow translates plain text and HTML between Spanish and Danish (and
other supported pairs) through a neural machine translation engine, with
caching, entity protection, glossary enforcement and script validation.

Examples:
  nmtflow translate --direction es-da "Hola mundo"
  nmtflow html --direction da-es -o out.html page.html
  nmtflow health --engine http --engine-url http://localhost:8081`,
		Version:       nmtflow.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&f.cfgFile, "config", "", "config file (default is ./nmtflow.yaml or $HOME/.nmtflow.yaml)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("engine", config.EngineMock, "Engine: mock, http, lambda, openai")
	pf.String("engine-url", "", "Model server URL for the http engine")
	pf.String("engine-function", "", "Lambda function for the lambda engine")
	pf.String("model", "", "Model for the openai engine")
	pf.String("cache", config.CacheLRU, "Cache backend: lru, redis, none")
	pf.String("redis-url", "", "Redis URL for the redis cache")
	pf.String("glossary", "", "YAML glossary file")
	pf.Int("retries", 0, "Retry transient engine failures this many times")
	pf.Bool("breaker", false, "Wrap the engine in a circuit breaker")
	pf.StringVarP(&f.direction, "direction", "d", "", "Translation direction, e.g. es-da")
	pf.StringVar(&f.cacheFile, "cache-file", "", "Import the lru cache from this JSON file and export it on exit")

	bindFlags(v, root)

	root.AddCommand(
		newTranslateCommand(v, f, stdin),
		newHTMLCommand(v, f, stdin),
		newHealthCommand(v, f),
		newCacheCommand(v, f),
		newVersionCommand(),
	)
	return root
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("engine.kind", pf.Lookup("engine"))
	_ = v.BindPFlag("engine.url", pf.Lookup("engine-url"))
	_ = v.BindPFlag("engine.function", pf.Lookup("engine-function"))
	_ = v.BindPFlag("engine.model", pf.Lookup("model"))
	_ = v.BindPFlag("cache.backend", pf.Lookup("cache"))
	_ = v.BindPFlag("cache.redis_url", pf.Lookup("redis-url"))
	_ = v.BindPFlag("glossary_file", pf.Lookup("glossary"))
	_ = v.BindPFlag("resilience.retries", pf.Lookup("retries"))
	_ = v.BindPFlag("resilience.breaker", pf.Lookup("breaker"))
}

// translationFlags adds the per-request options shared by translate and html.
func translationFlags(cmd *cobra.Command, f *flags) {
	cmd.Flags().BoolVar(&f.formal, "formal", false, "Use formal register where the target supports it")
	cmd.Flags().IntVar(&f.budget, "budget", 0, "Explicit token budget per unit (0 derives one)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Honour --budget exactly: no elevation, no continuation")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Output result as JSON")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Show the units that would be translated without calling the engine")
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
