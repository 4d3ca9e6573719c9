package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"jniscan/internal/core"
	"jniscan/internal/detectors"
	"jniscan/internal/report"
)

// fileConfig 是 YAML 配置文件的结构，与命令行选项一一对应
// 命令行显式给出的选项优先于配置文件
type fileConfig struct {
	Rules        []string `yaml:"rules"`
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	IncludeGlobs []string `yaml:"include_globs"`
	Workers      int      `yaml:"workers"`
	Timeout      string   `yaml:"timeout"`
	Format       string   `yaml:"format"`
}

type cliOptions struct {
	configPath string
	format     string
	outputDir  string
	outputFile string
	rules      []string
	excludes   []string
	includes   []string
	workers    int
	timeout    time.Duration
	listRules  bool
	verbose    bool
}

func main() {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "jniscan [paths...]",
		Short: "Static analyzer for JNI lifecycle violations in C/C++ source",
		Long: `jniscan analyzes C/C++ source for violations of JNI lifecycle contracts:
missing exception checks, missing null checks, unreleased local/global
references, unreleased array/string handles, unpaired thread attach/detach,
and inefficient repeated JNI calls inside loops.`,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&opts.format, "format", "f", "text", "report format: text, json, sarif, all")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "write report files to this directory instead of stdout")
	flags.StringVar(&opts.outputFile, "output-file", "", "report file name (implies --output-dir \".\" when unset)")
	flags.StringSliceVarP(&opts.rules, "rules", "r", nil, "rule ids to enable (default: all)")
	flags.StringSliceVar(&opts.excludes, "exclude", nil, "additional directory names to skip")
	flags.StringSliceVar(&opts.includes, "include", nil, "file glob patterns to scan")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "parallel workers (default: CPU count)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "wall-clock budget for the whole run; partial results are still reported")
	flags.BoolVar(&opts.listRules, "list-rules", false, "list available rule ids and exit")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jniscan: %v\n", err)
		os.Exit(2)
	}
}

func run(cmd *cobra.Command, opts *cliOptions, paths []string) error {
	if opts.listRules {
		descriptions := detectors.RuleDescriptions()
		for _, id := range detectors.RuleIDs() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s %s\n", id, descriptions[id])
		}
		return nil
	}

	if len(paths) == 0 {
		return fmt.Errorf("no input paths given")
	}

	if opts.configPath != "" {
		if err := applyFileConfig(cmd, opts); err != nil {
			return err
		}
	}

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	level := hclog.Warn
	if opts.verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "jniscan",
		Level:  level,
		Output: os.Stderr,
	})

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	scanner := core.NewScanner(detectors.AllRules(), core.ScanOptions{
		Workers:      opts.workers,
		EnabledRules: opts.rules,
		IncludeGlobs: opts.includes,
		ExcludeDirs:  opts.excludes,
		Logger:       logger,
	})

	result, err := scanner.Scan(ctx, paths)
	if err != nil {
		return err
	}
	if result.Status == core.StatusPartial {
		logger.Warn("scan interrupted, reporting partial results", "files_scanned", result.FilesScanned)
	}

	if err := writeReport(opts, format, result); err != nil {
		return err
	}

	if result.HasErrors() {
		// ERROR 级发现决定退出码；WARNING/ADVISORY 不使构建失败
		os.Exit(1)
	}
	return nil
}

// writeReport 按选项把结果写到标准输出或报告文件
func writeReport(opts *cliOptions, format report.Format, result *core.ScanResult) error {
	options := []report.ManagerOption{
		report.WithFormat(format),
		report.WithRuleDescriptions(detectors.RuleDescriptions()),
	}
	if opts.outputDir != "" {
		options = append(options, report.WithOutputDir(opts.outputDir))
	}
	if opts.outputFile != "" {
		options = append(options, report.WithFilename(opts.outputFile))
	}
	manager := report.NewManager(options...)

	if opts.outputDir == "" && opts.outputFile == "" {
		if format == report.FormatAll {
			return fmt.Errorf("--format all requires --output-dir")
		}
		return manager.WriteTo(result, format, os.Stdout)
	}

	files, err := manager.Generate(result)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(os.Stderr, "report written to %s\n", f)
	}
	return nil
}

// applyFileConfig 读取 YAML 配置并填充未在命令行显式给出的选项
func applyFileConfig(cmd *cobra.Command, opts *cliOptions) error {
	data, err := os.ReadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", opts.configPath, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", opts.configPath, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("rules") && len(cfg.Rules) > 0 {
		opts.rules = cfg.Rules
	}
	if !flags.Changed("exclude") && len(cfg.ExcludeDirs) > 0 {
		opts.excludes = cfg.ExcludeDirs
	}
	if !flags.Changed("include") && len(cfg.IncludeGlobs) > 0 {
		opts.includes = cfg.IncludeGlobs
	}
	if !flags.Changed("workers") && cfg.Workers > 0 {
		opts.workers = cfg.Workers
	}
	if !flags.Changed("format") && cfg.Format != "" {
		opts.format = cfg.Format
	}
	if !flags.Changed("timeout") && cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in %s: %w", cfg.Timeout, opts.configPath, err)
		}
		opts.timeout = d
	}

	if strings.TrimSpace(opts.format) == "" {
		opts.format = "text"
	}
	return nil
}
