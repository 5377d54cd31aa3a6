// Cobble CLI - compiles .cob sources into a behavior pack
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	"github.com/xyproto/env/v2"

	"github.com/cobble-lang/cobble/compiler"
	"github.com/cobble-lang/cobble/manifest"
	"github.com/cobble-lang/cobble/pack"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	checkOnly := flag.Bool("c", false, "Check only: compile without writing the pack")
	outDir := flag.String("o", env.Str("COBBLE_OUTPUT", ""), "Output directory (overrides cobble.toml)")
	maxInline := flag.Int("max-inline", env.Int("COBBLE_MAX_INLINE", 0), "Inline threshold override (0 = from cobble.toml)")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cobble [options] [path]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles the Cobble project at path (default: the current directory)\n")
		fmt.Fprintf(os.Stderr, "into a behavior pack. A bare .cob file compiles standalone.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cobble                 # Build the project in .\n")
		fmt.Fprintf(os.Stderr, "  cobble ./mypack        # Build the project in ./mypack\n")
		fmt.Fprintf(os.Stderr, "  cobble -c main.cob     # Check a single file\n")
		fmt.Fprintf(os.Stderr, "  cobble -o dist         # Build into ./dist\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("cobble %s\n", version)
		return
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	path := "."
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}
	if flag.NArg() > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one path\n")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(path, *outDir, *maxInline, *checkOnly, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, outDir string, maxInline int, checkOnly, verbose bool) error {
	if strings.HasSuffix(path, ".cob") {
		return runFile(path, outDir, maxInline, checkOnly, verbose)
	}

	m, err := manifest.FindAndLoad(path)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no cobble.toml found at or above %s", path)
	}
	cfg := configFrom(m, maxInline)
	if outDir != "" {
		m.Pack.Output = outDir
	}

	prog := compiler.NewProgram(cfg)
	if err := prog.CompileFile(m.EntryPath()); err != nil {
		return err
	}
	out, err := prog.Finish()
	if err != nil {
		return err
	}
	reportWarnings(prog)
	if verbose {
		fmt.Printf("Compiled %d sequences from %s\n", len(out.Sequences), m.EntryPath())
	}
	if checkOnly {
		return nil
	}
	if err := pack.Write(m, out); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Wrote pack to %s\n", m.OutputDir())
	}
	return nil
}

// runFile compiles a standalone source file with default settings.
func runFile(path, outDir string, maxInline int, checkOnly, verbose bool) error {
	cfg := compiler.DefaultConfig()
	if maxInline > 0 {
		cfg.MaxInlineSize = maxInline
	}
	prog := compiler.NewProgram(cfg)
	if err := prog.CompileFile(path); err != nil {
		return err
	}
	out, err := prog.Finish()
	if err != nil {
		return err
	}
	reportWarnings(prog)
	if verbose {
		fmt.Printf("Compiled %d sequences from %s\n", len(out.Sequences), path)
	}
	if checkOnly {
		return nil
	}

	name := strings.TrimSuffix(filepath.Base(path), ".cob")
	m := &manifest.Manifest{}
	m.Project.Name = name
	m.Project.Namespace = name
	m.Pack.Output = "build"
	m.Pack.MinEngine = []int{1, 19, 50}
	if outDir != "" {
		m.Pack.Output = outDir
	}
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	if err := pack.Write(m, out); err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Wrote pack to %s\n", m.OutputDir())
	}
	return nil
}

func configFrom(m *manifest.Manifest, maxInline int) *compiler.Config {
	cfg := compiler.DefaultConfig()
	if m.Compiler.Objective != "" {
		cfg.Objective = m.Compiler.Objective
	}
	if m.Compiler.RegPrefix != "" {
		cfg.RegPrefix = m.Compiler.RegPrefix
	}
	if m.Compiler.GenPrefix != "" {
		cfg.GenPrefix = m.Compiler.GenPrefix
	}
	if m.Compiler.MaxInlineSize > 0 {
		cfg.MaxInlineSize = m.Compiler.MaxInlineSize
	}
	if m.Compiler.MaxCommands > 0 {
		cfg.MaxCommands = m.Compiler.MaxCommands
	}
	cfg.Debug = m.Compiler.Debug
	if maxInline > 0 {
		cfg.MaxInlineSize = maxInline
	}
	return cfg
}

func reportWarnings(prog *compiler.Program) {
	for _, w := range prog.Warnings() {
		fmt.Fprintf(os.Stderr, "%s\n", w.Error())
	}
}
