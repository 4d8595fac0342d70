// reposlice computes interprocedural program slices over a C/C++ project,
// driven by a JSON slice request and an external intra-procedural oracle.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reposlice/reposlice/internal/analyzer"
	"github.com/reposlice/reposlice/internal/config"
	"github.com/reposlice/reposlice/internal/discover"
	"github.com/reposlice/reposlice/internal/ir"
	"github.com/reposlice/reposlice/internal/lang"
	"github.com/reposlice/reposlice/internal/oracle"
	"github.com/reposlice/reposlice/internal/request"
	"github.com/reposlice/reposlice/internal/slicer"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("reposlice", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		requestPath string
		configPath  string
		language    string
		workers     int
		model       string
		baseURL     string
		temperature float64
		retries     int
		timeout     int
		callDepth   int
		outDir      string
		verbose     bool
		showVersion bool
	)

	fs.StringVar(&requestPath, "request", "", "path to the slice request JSON file (required)")
	fs.StringVar(&configPath, "config", "", "path to a yaml configuration file")
	fs.StringVar(&language, "language", "", "source language: c or cpp")
	fs.IntVar(&workers, "workers", 0, "number of parallel analysis workers")
	fs.StringVar(&model, "model", "", "oracle model name")
	fs.StringVar(&baseURL, "base-url", "", "oracle service base URL")
	fs.Float64Var(&temperature, "temperature", 0, "oracle sampling temperature")
	fs.IntVar(&retries, "retries", 0, "oracle retry budget per query")
	fs.IntVar(&timeout, "timeout", 0, "oracle call timeout in seconds")
	fs.IntVar(&callDepth, "call-depth", -1, "interprocedural hop budget")
	fs.StringVar(&outDir, "out", ".", "directory the report is written to")
	fs.BoolVar(&verbose, "v", false, "enable debug logging")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "reposlice %s\n", version)
		return nil
	}

	log.SetOutput(stderr)
	log.SetLevel(log.InfoLevel)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	if requestPath == "" {
		return fmt.Errorf("-request is required")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	// Explicit flags win over the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "language":
			cfg.Language = language
		case "workers":
			cfg.MaxWorkers = workers
		case "model":
			cfg.Model = model
		case "base-url":
			cfg.BaseURL = baseURL
		case "temperature":
			cfg.Temperature = temperature
		case "retries":
			cfg.MaxRetries = retries
		case "timeout":
			cfg.TimeoutSeconds = timeout
		case "call-depth":
			cfg.CallDepth = callDepth
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	req, err := request.Load(requestPath, cfg.Backward)
	if err != nil {
		return err
	}
	log.Info(req.Description())

	ctx := context.Background()
	pm, err := buildModel(ctx, cfg, req.ProjectPath)
	if err != nil {
		return err
	}

	completer := oracle.NewChatClient(cfg.BaseURL, cfg.APIKey(), cfg.Model,
		cfg.Temperature, time.Duration(cfg.TimeoutSeconds)*time.Second)
	intra, err := oracle.NewIntraSlicer(completer, cfg.MaxRetries)
	if err != nil {
		return err
	}

	driver := slicer.New(pm, intra, cfg.CallDepth)
	report, err := driver.Run(ctx, req)
	if err != nil {
		return err
	}

	path, err := report.Save(outDir)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, path)
	return nil
}

// buildModel discovers, reads and analyzes the project's source files.
func buildModel(ctx context.Context, cfg config.Config, root string) (*ir.ProgramModel, error) {
	language, _ := lang.Get(cfg.Language)

	paths, err := discover.Files(root, language)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s files found under %s", cfg.Language, root)
	}
	log.Infof("analyzing %d %s files with %d workers", len(paths), cfg.Language, cfg.MaxWorkers)

	files := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			log.Warnf("reading %s: %v", p, err)
			continue
		}
		files[p] = string(data)
	}

	return analyzer.New(language, files, cfg.MaxWorkers).Run(ctx)
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-request": true, "--request": true,
	"-config": true, "--config": true,
	"-language": true, "--language": true,
	"-workers": true, "--workers": true,
	"-model": true, "--model": true,
	"-base-url": true, "--base-url": true,
	"-temperature": true, "--temperature": true,
	"-retries": true, "--retries": true,
	"-timeout": true, "--timeout": true,
	"-call-depth": true, "--call-depth": true,
	"-out": true, "--out": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}
