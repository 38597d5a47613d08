package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"podtrack/internal/app"
	"podtrack/internal/config"
	"podtrack/internal/logging"
	"podtrack/internal/storage"
)

func main() {
	importOPML := flag.String("import-opml", "", "import subscriptions from an OPML file and exit")
	exportOPML := flag.String("export-opml", "", "export subscriptions to an OPML file and exit")
	refreshAll := flag.Bool("refresh-all", false, "refresh every subscription and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to resolve home directory: %v", err)
	}

	baseDir := filepath.Join(home, ".podtrack")
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		log.Fatalf("failed to create config directory: %v", err)
	}

	logging.Configure(logging.Path(baseDir))

	configPath := filepath.Join(baseDir, "config.yaml")
	cfg, err := config.Ensure(ctx, configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dbPath := filepath.Join(baseDir, "app.db")
	db, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	application := app.New(cfg, configPath, db)
	defer application.Close()

	if *importOPML != "" && *exportOPML != "" {
		fmt.Fprintln(os.Stderr, "error: --import-opml and --export-opml cannot be used together")
		os.Exit(1)
	}

	if *exportOPML != "" {
		count, err := application.ExportOPML(ctx, *exportOPML)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error exporting OPML: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "Exported %d subscriptions to %s.\n", count, *exportOPML)
		return
	}

	if *importOPML != "" {
		result, err := application.ImportOPML(ctx, *importOPML)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error importing OPML: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "Imported %d subscriptions, skipped %d already subscribed.\n", result.Imported, result.Skipped)
		if len(result.Errors) > 0 {
			fmt.Fprintln(os.Stdout, "Errors encountered:")
			for _, msg := range result.Errors {
				fmt.Fprintf(os.Stdout, "  %s\n", msg)
			}
		}
		return
	}

	if *refreshAll {
		result, err := application.Execute(ctx, "refresh all")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, result.Message)
		return
	}

	if err := runLoop(ctx, application); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runLoop reads commands from stdin until exit or EOF.
func runLoop(ctx context.Context, application *app.App) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stdout)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		result, err := application.Execute(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if result.Quit {
			return nil
		}
		render(result)
	}
}

func render(result app.CommandResult) {
	if result.Message != "" {
		fmt.Fprintln(os.Stdout, result.Message)
	}
	for _, r := range result.SearchResults {
		fmt.Fprintf(os.Stdout, "%10d  %s - %s\n", r.TrackID, r.Title, r.Author)
	}
	for _, tr := range result.Trending {
		fmt.Fprintf(os.Stdout, "%4d  %s - %s\n", tr.Score, tr.Title, tr.Author)
	}
	for _, p := range result.Podcasts {
		fmt.Fprintf(os.Stdout, "%6d  %s\n", p.ID, p.Title)
	}
	for _, e := range result.Episodes {
		marker := " "
		if e.Played() {
			marker = "*"
		}
		fmt.Fprintf(os.Stdout, "%s %-40s  %s  %s\n", marker, e.GUID, formatDuration(e.Duration), e.PubDate)
	}
}

func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "--:--"
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
