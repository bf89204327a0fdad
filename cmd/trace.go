package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/selimozcann/WhereGoes/internal/banner"
	"github.com/selimozcann/WhereGoes/internal/config"
	"github.com/selimozcann/WhereGoes/internal/model"
	"github.com/selimozcann/WhereGoes/internal/output"
	"github.com/selimozcann/WhereGoes/internal/runner"
	"github.com/selimozcann/WhereGoes/internal/trace"
)

type traceOptions struct {
	targetsFile string
	headers     []string
	format      string
	outputPath  string
	htmlPath    string
	live        bool
	noBanner    bool
}

// traceBindings maps config keys onto trace command flags.
var traceBindings = map[string]string{
	"trace.max_redirects": "max-redirects",
	"trace.hop_timeout":   "hop-timeout",
	"runner.threads":      "threads",
	"runner.rate_limit":   "rl",
	"http.cookie":         "cookie",
	"http.proxy":          "proxy",
	"http.insecure":       "insecure",
	"http.user_agent":     "user-agent",
}

var formats = []string{"text", "json", "jsonl", "yaml"}

func newTraceCmd() *cobra.Command {
	opts := &traceOptions{}
	cmd := &cobra.Command{
		Use:   "trace [url...]",
		Short: "Trace the redirect chain of one or more URLs",
		Example: `  wheregoes trace bit.ly/example
  wheregoes trace --live --max-redirects 5 http://example.com
  wheregoes trace -f urls.txt --format jsonl -o results.jsonl --html report.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.Int("max-redirects", trace.DefaultMaxRedirects, "Redirects to follow before stopping")
	f.Duration("hop-timeout", 10*time.Second, "Timeout for each request (0 disables)")
	f.Int("threads", 10, "Concurrent traces")
	f.Int("rl", 0, "Traces started per second (0 = unlimited)")
	f.String("cookie", "", "Cookie header to send")
	f.String("proxy", "", "HTTP proxy URL")
	f.Bool("insecure", false, "Skip TLS certificate verification")
	f.String("user-agent", "", "User-Agent header to send")
	f.StringArrayVarP(&opts.headers, "header", "H", nil, "Extra header (repeatable), e.g. -H 'X-Test: 1'")
	f.StringVarP(&opts.targetsFile, "file", "f", "", "File with one URL per line")
	f.StringVar(&opts.format, "format", "text", "Output format: "+strings.Join(formats, ", "))
	f.StringVarP(&opts.outputPath, "output", "o", "", "Write records to this file (JSONL for text format)")
	f.StringVar(&opts.htmlPath, "html", "", "Write an HTML report to this file")
	f.BoolVar(&opts.live, "live", false, "Print hops as they resolve (single target, text format)")
	f.BoolVar(&opts.noBanner, "no-banner", false, "Do not print the banner")
	return cmd
}

func runTrace(cmd *cobra.Command, args []string, opts *traceOptions) error {
	if !validFormat(opts.format) {
		return fmt.Errorf("unknown format %q (want one of %s)", opts.format, strings.Join(formats, ", "))
	}
	_, cfg, err := loadConfig(cmd, traceBindings)
	if err != nil {
		return err
	}
	extra, err := toHeader(opts.headers)
	if err != nil {
		return err
	}
	targets, err := buildTargets(args, opts.targetsFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log := newLogger(cfg, cmd.ErrOrStderr())
	tracer, err := buildTracer(cfg, extra, log, nil)
	if err != nil {
		return err
	}

	text := opts.format == "text"
	if text && !opts.noBanner {
		banner.Print(out)
	}
	console := output.NewConsole(out)

	live := text && opts.live
	if opts.live && len(targets) > 1 {
		log.Warn("--live only applies to a single target")
		live = false
	}
	var progress runner.Progress
	if live {
		var mu sync.Mutex
		console.PrintScanHeader(targets[0])
		progress = func(_ int, c trace.Chain) {
			mu.Lock()
			defer mu.Unlock()
			console.PrintProgress(c)
		}
	}

	start := time.Now()
	r := runner.New(runner.Config{Threads: cfg.Runner.Threads, RateLimit: cfg.Runner.RateLimit}, tracer)
	results := r.Run(cmd.Context(), targets, progress)
	log.Debug("traces finished", "targets", len(targets), "took", time.Since(start))

	records := make([]output.Record, len(results))
	for i, res := range results {
		records[i] = output.BuildRecord(res)
		records[i].ID = uuid.NewString()
	}

	if text {
		printText(console, results, live)
	} else if opts.outputPath == "" {
		if err := writeRecords(out, opts.format, records); err != nil {
			return err
		}
	}

	if opts.outputPath != "" {
		format := opts.format
		if text {
			format = "jsonl"
		}
		if err := writeFile(opts.outputPath, func(w io.Writer) error {
			return writeRecords(w, format, records)
		}); err != nil {
			return fmt.Errorf("write %s: %w", format, err)
		}
		log.Info("records written", "path", opts.outputPath, "format", format)
	}

	if opts.htmlPath != "" {
		page := output.PageData{
			Title:       "WhereGoes Report",
			GeneratedAt: time.Now(),
			Params:      buildParamsMap(cfg, opts, len(targets)),
			Summary:     output.BuildSummary(results),
			Records:     records,
		}
		if err := writeFile(opts.htmlPath, func(w io.Writer) error {
			return output.RenderHTML(w, page)
		}); err != nil {
			return fmt.Errorf("write HTML: %w", err)
		}
		log.Info("HTML report written", "path", opts.htmlPath)
	}

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d traces failed", failed, len(results))
	}
	return nil
}

func printText(console *output.Console, results []model.Result, live bool) {
	if live {
		console.PrintNotes(results[0])
		console.PrintOutcome(results[0])
		return
	}
	for _, res := range results {
		console.PrintScanHeader(res.Target)
		console.PrintResult(res)
	}
	if len(results) > 1 {
		fmt.Fprintln(console.Writer())
		for i, res := range results {
			console.PrintSummary(i, len(results), res)
		}
	}
}

func validFormat(f string) bool {
	for _, known := range formats {
		if f == known {
			return true
		}
	}
	return false
}

func writeRecords(w io.Writer, format string, records []output.Record) error {
	switch format {
	case "json":
		return output.WriteJSON(w, records)
	case "yaml":
		return output.WriteYAML(w, records)
	default:
		return output.WriteJSONL(w, records)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// buildTargets joins positional URLs with those read from path. Blank
// lines and lines starting with # are skipped in the file.
func buildTargets(args []string, path string) ([]string, error) {
	targets := append([]string(nil), args...)
	if path != "" {
		lines, err := loadURLs(path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, lines...)
	}
	if len(targets) == 0 {
		return nil, errors.New("no targets: pass a URL or -f file")
	}
	return targets, nil
}

func loadURLs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets file %q: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	var entries []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("targets file read error: %w", err)
	}
	return entries, nil
}

func toHeader(headers []string) (http.Header, error) {
	hdr := make(http.Header)
	for _, h := range headers {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header %q (expected Key: Value)", h)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid header %q (empty key)", h)
		}
		hdr.Add(key, value)
	}
	return hdr, nil
}

func buildParamsMap(cfg *config.Config, opts *traceOptions, targetCount int) map[string]string {
	params := map[string]string{
		"max_redirects": strconv.Itoa(cfg.Trace.MaxRedirects),
		"hop_timeout":   cfg.Trace.HopTimeoutDuration().String(),
		"threads":       strconv.Itoa(cfg.Runner.Threads),
		"rate_limit":    strconv.Itoa(cfg.Runner.RateLimit),
		"insecure":      strconv.FormatBool(cfg.HTTP.Insecure),
		"format":        opts.format,
		"targets":       strconv.Itoa(targetCount),
	}
	if opts.targetsFile != "" {
		params["targets_file"] = opts.targetsFile
	}
	if cfg.HTTP.Proxy != "" {
		params["proxy"] = cfg.HTTP.Proxy
	}
	if cfg.HTTP.Cookie != "" {
		params["cookie"] = cfg.HTTP.Cookie
	}
	if len(opts.headers) > 0 {
		params["headers"] = strings.Join(opts.headers, "; ")
	}
	return params
}
