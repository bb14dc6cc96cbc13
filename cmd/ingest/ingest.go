package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"legal-ai-assistant/internal/app"
	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/services"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(22)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func usage() {
	fmt.Println("Usage: go run ./cmd/ingest <command> [flags] [file]")
	fmt.Println("Commands:")
	fmt.Println("  pdf [-constitution] <file>       - Extract a PDF, split it into articles and ingest each one")
	fmt.Println("  articles [-constitution] <file>  - Ingest a JSON or YAML list of articles (alias: json)")
	fmt.Println("  text <file>                      - Ingest a plain-text file as one document")
	fmt.Println("  updates                          - Scrape legal updates once and store new ones")
	fmt.Println("  reset [-updates]                 - Drop every chunk of the document (or updates) index")
	fmt.Println("  stats                            - Print chunk and source counts")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	constitution := fs.Bool("constitution", false, "tag articles as constitution articles")
	updates := fs.Bool("updates", false, "operate on the legal updates collection")
	fs.Parse(args)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	cfg.LLMDisabled = true
	cfg.UpdatesEnabled = command == "updates"

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer a.Close(context.Background())

	switch command {
	case "pdf":
		path := requireFile(fs)
		extracted, err := a.Extractor.ExtractFile(ctx, path)
		if err != nil {
			log.Fatalf("Extraction failed: %v", err)
		}
		articles := services.SplitArticles(extracted.Text)
		res, err := services.IngestArticles(ctx, a.Documents, filepath.Base(path), articles, *constitution)
		printIngest(filepath.Base(path), len(articles), res, map[string]string{"Pages": strconv.Itoa(extracted.Pages)})
		if err != nil {
			log.Fatalf("Ingestion stopped: %v", err)
		}

	case "articles", "json":
		path := requireFile(fs)
		articles, err := services.LoadArticles(path)
		if err != nil {
			log.Fatal(err)
		}
		res, err := services.IngestArticles(ctx, a.Documents, filepath.Base(path), articles, *constitution)
		printIngest(filepath.Base(path), len(articles), res, nil)
		if err != nil {
			log.Fatalf("Ingestion stopped: %v", err)
		}

	case "text":
		path := requireFile(fs)
		content, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		name := filepath.Base(path)
		res, err := a.Documents.Ingest(ctx, string(content), map[string]any{"source": name, "file_name": name})
		if err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		printBox(res.Message, [][2]string{{"Source", res.Source}, {"Chunks", strconv.Itoa(res.Chunks)}})

	case "updates":
		stored, err := a.Scheduler.RefreshNow(ctx)
		if err != nil {
			log.Fatalf("Legal updates refresh failed after storing %d: %v", stored, err)
		}
		printBox("Legal updates refreshed", [][2]string{
			{"Sources", fmt.Sprint(a.Feed.SourceNames())},
			{"Stored", strconv.Itoa(stored)},
		})

	case "reset":
		store := a.Documents
		if *updates {
			store = a.Updates
		}
		if err := store.Reset(ctx); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		printBox("Index reset", [][2]string{{"Collection", store.Collection()}})

	case "stats":
		rows := [][2]string{}
		for _, store := range []*services.DocumentStore{a.Documents, a.Updates} {
			stats, err := store.Stats(ctx)
			if err != nil {
				log.Fatalf("Stats for %s failed: %v", store.Collection(), err)
			}
			rows = append(rows,
				[2]string{store.Collection() + " chunks", strconv.Itoa(stats.TotalChunks)},
				[2]string{store.Collection() + " sources", strconv.Itoa(stats.TotalUniqueSources)},
			)
		}
		printBox("Index statistics", rows)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func requireFile(fs *flag.FlagSet) string {
	if fs.NArg() != 1 {
		log.Fatalf("%s needs exactly one file argument", fs.Name())
	}
	return fs.Arg(0)
}

func printIngest(name string, total int, res services.ArticleIngestResult, extra map[string]string) {
	rows := [][2]string{
		{"Articles found", strconv.Itoa(total)},
		{"Added", strconv.Itoa(res.Added)},
		{"Skipped", strconv.Itoa(res.Skipped)},
		{"Chunks", strconv.Itoa(res.Chunks)},
	}
	for k, v := range extra {
		rows = append(rows, [2]string{k, v})
	}
	printBox("Ingested "+name, rows)
}

func printBox(title string, rows [][2]string) {
	body := titleStyle.Render(title)
	for _, r := range rows {
		body += "\n" + labelStyle.Render(r[0]) + valueStyle.Render(r[1])
	}
	fmt.Println(boxStyle.Render(body))
}
