package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nsct/internal/adapter"
	"nsct/internal/config"
	"nsct/internal/definition"
	"nsct/internal/repository"
	"nsct/internal/repository/sqlite"
	"nsct/internal/server"
)

var version = "dev"

// categoryList collects repeated -generate flags
type categoryList []string

func (c *categoryList) String() string {
	return strings.Join(*c, ",")
}

func (c *categoryList) Set(v string) error {
	if v == config.GenerateAll {
		*c = append(*c, v)
		return nil
	}
	if _, ok := server.ParseCategory(v); !ok {
		names := make([]string, len(server.Categories))
		for i, cat := range server.Categories {
			names[i] = string(cat)
		}
		return fmt.Errorf("must be one of all, %s", strings.Join(names, ", "))
	}
	*c = append(*c, v)
	return nil
}

type options struct {
	check      bool
	diff       bool
	dump       string
	generate   categoryList
	store      string
	preflight  bool
	configPath string
	version    bool
	file       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("nsct", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.check, "check", false, "parse and compute the definition, then exit")
	fs.BoolVar(&opts.diff, "diff", false, "compare the canonical dump with FILE using diff -c")
	fs.StringVar(&opts.dump, "dump", "", "write the canonical definition to `PATH` (- for stdout)")
	fs.Var(&opts.generate, "generate", "generate service `CATEGORY` (repeatable, default all)")
	fs.StringVar(&opts.store, "store", "", "record a snapshot in the sqlite inventory at `PATH`")
	fs.BoolVar(&opts.preflight, "preflight", false, "check every server's SSH port with nmap before generating")
	fs.StringVar(&opts.configPath, "config", "", "read tool settings from `PATH`")
	fs.BoolVar(&opts.version, "version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: nsct [flags] FILE\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.version {
		return opts, nil
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected exactly one definition file, got %d", fs.NArg())
	}
	opts.file = fs.Arg(0)
	return opts, nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// run executes the tool and returns the process exit code. Definition
// errors go to stdout, everything else to the log on stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.version {
		fmt.Fprintf(stdout, "nsct %s\n", version)
		return 0
	}

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	level, err := cfg.Level(getenv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	if cfgPath != "" {
		slog.Debug("loaded config", "path", cfgPath)
	}

	def, err := definition.Load(opts.file)
	if err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}

	if err := def.Compute(); err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}

	if opts.diff {
		return diff(opts.file, def, stdout, stderr)
	}
	if opts.dump != "" {
		if err := dump(opts.dump, def, stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	if opts.check {
		slog.Info("definition is valid", "file", opts.file)
		return 0
	}

	storePath := cfg.Store
	if opts.store != "" {
		storePath = opts.store
	}
	if storePath != "" {
		if err := record(ctx, storePath, def); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	if opts.preflight || cfg.Preflight.Enabled {
		p := adapter.NewPreflight(adapter.WithScanTimeout(cfg.Preflight.Timeout.Duration()))
		if err := p.Check(ctx, def.Servers()); err != nil {
			fmt.Fprintln(stdout, err)
			return 1
		}
	}

	only := cfg.Categories()
	if len(opts.generate) > 0 {
		only, _ = config.ParseCategories(opts.generate)
	}
	dialer := adapter.NewSSHDialer(adapter.SSHConfig{
		ConnectTimeout: cfg.SSH.ConnectTimeout.Duration(),
		CommandTimeout: cfg.SSH.CommandTimeout.Duration(),
	})
	if err := def.Generate(ctx, only, dialer); err != nil {
		fmt.Fprintln(stdout, err)
		return 1
	}
	return 0
}

// diff pipes the canonical dump into diff -c and returns diff's exit code
func diff(file string, def *definition.Definition, stdout, stderr io.Writer) int {
	var buf bytes.Buffer
	if err := def.Dump(&buf); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cmd := exec.Command("diff", "-c", file, "-")
	cmd.Stdin = &buf
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		fmt.Fprintf(stderr, "run diff: %v\n", err)
		return 1
	}
	return 0
}

func dump(path string, def *definition.Definition, stdout io.Writer) error {
	if path == "-" {
		return def.Dump(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump: %w", err)
	}
	if err := def.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// record stores a snapshot of def and logs how allocations changed since
// the previous run of the same file.
func record(ctx context.Context, path string, def *definition.Definition) error {
	repo, err := sqlite.New(path)
	if err != nil {
		return fmt.Errorf("open store %s: %w", path, err)
	}
	defer repo.Close()

	cur, err := repository.NewSnapshot(def, time.Now())
	if err != nil {
		return err
	}
	prev, err := repo.Latest(ctx, cur.Source)
	if err != nil && !errors.Is(err, repository.ErrNoSnapshot) {
		return err
	}
	for _, c := range repository.Changes(prev, cur) {
		slog.Info("allocation changed", "change", c.String())
	}
	return repo.Record(ctx, cur)
}
