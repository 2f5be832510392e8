package main

import (
	"bufio"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"lsmkv/internal/config"
	"lsmkv/internal/metrics"
	"lsmkv/internal/storage"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	missStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	dir := flag.String("dir", "", "Storage directory (overrides config)")
	capacity := flag.Int("capacity", 0, "Memtable capacity (overrides config)")
	sparsity := flag.Int("sparsity", 0, "Index sparsity (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9100)")
	verbose := flag.Bool("verbose", false, "Log engine events to stderr")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
			os.Exit(1)
		}
		cfg = loaded
	}
	if *dir != "" {
		cfg.StorageDirectory = *dir
	}
	if *capacity > 0 {
		cfg.MemtableCapacity = *capacity
	}
	if *sparsity > 0 {
		cfg.Sparsity = *sparsity
	}

	logger := zap.NewNop()
	if *verbose {
		devLogger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
			os.Exit(1)
		}
		logger = devLogger
		defer logger.Sync()
	}

	registry := metrics.NewRegistry()
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", registry.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	engine, err := storage.Open(storage.EngineConfig{
		Dir:              cfg.StorageDirectory,
		MemtableCapacity: cfg.MemtableCapacity,
		Sparsity:         cfg.Sparsity,
		BloomErrorRate:   cfg.BloomErrorRate,
		Logger:           logger,
		Metrics:          registry,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Println(infoStyle.Render("lsmkv shell — type 'help' for commands"))
	repl(engine)
}

func repl(engine *storage.Engine) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("lsmkv> "))
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		switch command {
		case "set":
			key, value, ok := strings.Cut(strings.TrimSpace(rest), " ")
			if !ok {
				fmt.Println(errorStyle.Render("usage: set <key> <value>"))
				continue
			}
			if err := engine.Set([]byte(key), []byte(value)); err != nil {
				fmt.Println(errorStyle.Render("Error: " + err.Error()))
				continue
			}
			fmt.Println(okStyle.Render("OK"))

		case "get":
			key := strings.TrimSpace(rest)
			if key == "" {
				fmt.Println(errorStyle.Render("usage: get <key>"))
				continue
			}
			value, err := engine.Get([]byte(key))
			if err == storage.ErrKeyNotFound {
				fmt.Println(missStyle.Render("(not found)"))
				continue
			}
			if err != nil {
				fmt.Println(errorStyle.Render("Error: " + err.Error()))
				continue
			}
			fmt.Println(okStyle.Render(string(value)))

		case "flush":
			if err := engine.Flush(); err != nil {
				fmt.Println(errorStyle.Render("Error: " + err.Error()))
				continue
			}
			fmt.Println(okStyle.Render("OK"))

		case "keys":
			keys := engine.Keys()
			if len(keys) == 0 {
				fmt.Println(missStyle.Render("(memtable empty)"))
				continue
			}
			for _, key := range keys {
				fmt.Println(okStyle.Render(key))
			}

		case "stats":
			stats := engine.Stats()
			fmt.Println(infoStyle.Render(fmt.Sprintf("memtable entries: %d", stats.MemtableEntries)))
			fmt.Println(infoStyle.Render(fmt.Sprintf("sorted files:     %d", len(stats.SSTableFiles))))
			for _, path := range stats.SSTableFiles {
				fmt.Println(infoStyle.Render("  " + path))
			}

		case "help":
			printHelp()

		case "exit", "quit":
			return

		default:
			fmt.Println(errorStyle.Render("Unknown command: " + command))
			printHelp()
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  set <key> <value>   Store a key-value pair
  get <key>           Look up a key
  flush               Force the memtable to disk
  keys                List keys buffered in the memtable
  stats               Show memtable size and sorted files
  help                Show this help
  exit                Leave the shell`)
}
