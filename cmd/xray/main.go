package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/docforensics/xray/internal/config"
	"github.com/docforensics/xray/internal/detect"
	"github.com/docforensics/xray/internal/engine"
	"github.com/docforensics/xray/internal/input"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging sends diagnostics to stderr so the JSON result on stdout
// stays machine-readable, and silences everything below debug level. The
// discard writer must never alias a real descriptor: stdin can be a live
// pipe when the document arrives via "xray -".
func setupLogging(cfg *config.Config) {
	log.SetOutput(os.Stderr)
	if !cfg.IsDebug() {
		log.SetOutput(io.Discard)
	}
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}
	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	args := pflag.Args()
	if len(args) != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	if err := run(cfg, args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "xray: %v\n", err)
		os.Exit(1)
	}
}

// run resolves the input, opens the document, inspects every page and
// prints the result as indented JSON. Anything it returns is a fatal error;
// per-page problems are absorbed by the detector.
func run(cfg *config.Config, arg string) error {
	resolver := input.NewResolver(cfg.MaxFileSize)
	src, err := resolver.Resolve(arg)
	if err != nil {
		return err
	}

	doc, err := engine.Open(src)
	if err != nil {
		return err
	}
	defer doc.Close()

	detector := detect.NewDetector(cfg)
	result, err := detector.Inspect(doc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("xray - PDF bad redaction finder\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
