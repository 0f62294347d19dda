package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/config"
	repopg "github.com/tendant/simple-news/pkg/simplenews/repo/postgres"
)

const usage = `Simple News Admin CLI

Maintenance commands that share the server's configuration.

USAGE:
  admin <command> [options]

COMMANDS:
  migrate up|down|version   Apply, revert or inspect the database schema
  migrate steps <n>         Apply (n > 0) or revert (n < 0) n migrations
  articles                  List articles with their image counts
  images                    List the image catalog
  sweep                     Reclaim images no article references

ENVIRONMENT VARIABLES:
  DATABASE_URL        PostgreSQL connection string (memory when unset)
  CONTENT_DB_SCHEMA   PostgreSQL schema name (default: news)
  STORAGE_URL         Blob storage, e.g. file:///var/news or s3://bucket

  Configuration can be loaded from a .env file in the current directory.
  Command line environment variables override .env file values.

EXAMPLES:
  admin migrate up
  admin migrate steps -1
  admin articles --json
  admin images --orphans
  admin sweep --grace=48h
`

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage + "\n")
		os.Exit(0)
	}

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	args := os.Args[2:]

	switch command {
	case "migrate":
		err = runMigrate(cfg, args, os.Stdout)
	case "articles":
		err = runArticles(ctx, cfg, args, os.Stdout)
	case "images":
		err = runImages(ctx, cfg, args, os.Stdout)
	case "sweep":
		err = runSweep(ctx, cfg, args, os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

func runMigrate(cfg *config.ServerConfig, args []string, out io.Writer) error {
	if cfg.DatabaseType != "postgres" {
		return errors.New("migrations require DATABASE_URL to point at postgres")
	}
	if len(args) == 0 {
		return errors.New("missing migrate direction (up, down, steps, version)")
	}

	m, err := repopg.NewMigrator(config.WithSearchPath(cfg.DatabaseURL, cfg.DBSchema))
	if err != nil {
		return err
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		fs := pflag.NewFlagSet("migrate steps", pflag.ContinueOnError)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		var n int
		if fs.NArg() != 1 {
			return errors.New("usage: migrate steps <n>")
		}
		if _, err := fmt.Sscan(fs.Arg(0), &n); err != nil || n == 0 {
			return fmt.Errorf("invalid step count %q", fs.Arg(0))
		}
		err = m.Steps(n)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "No migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		fmt.Fprintf(out, "Version: %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction %q", args[0])
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(out, "No change")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Migration complete")
	return nil
}

func runArticles(ctx context.Context, cfg *config.ServerConfig, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("articles", pflag.ContinueOnError)
	useJSON := fs.Bool("json", false, "output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, closeService, err := cfg.BuildService(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	articles, err := svc.ListArticles(ctx)
	if err != nil {
		return err
	}
	if *useJSON {
		return writeJSON(out, articles)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTITLE\tIMAGES\tFEATURED\tCREATED\n")
	for _, a := range articles {
		featured := "-"
		if a.FeaturedImageID != nil {
			featured = a.FeaturedImageID.String()[:8] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			a.ID.String()[:8]+"...",
			truncate(a.Title, 40),
			len(a.Images),
			featured,
			a.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d\n", len(articles))
	return nil
}

func runImages(ctx context.Context, cfg *config.ServerConfig, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("images", pflag.ContinueOnError)
	useJSON := fs.Bool("json", false, "output as JSON")
	orphans := fs.Bool("orphans", false, "only list images no article references")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, closeService, err := cfg.BuildService(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	images, err := svc.ListImages(ctx)
	if err != nil {
		return err
	}

	if *orphans {
		articles, err := svc.ListArticles(ctx)
		if err != nil {
			return err
		}
		images = unreferenced(images, articles)
	}

	if *useJSON {
		return writeJSON(out, images)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTORAGE KEY\tCREATED\n")
	for _, img := range images {
		fmt.Fprintf(w, "%s\t%s\t%s\n", img.ID, img.StorageKey, img.CreatedAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d\n", len(images))
	return nil
}

func runSweep(ctx context.Context, cfg *config.ServerConfig, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("sweep", pflag.ContinueOnError)
	grace := fs.Duration("grace", cfg.OrphanSweepGrace, "only reclaim images older than this")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *grace < 0 {
		return errors.New("grace must not be negative")
	}

	svc, closeService, err := cfg.BuildService(ctx)
	if err != nil {
		return err
	}
	defer closeService()

	n, err := svc.SweepOrphans(ctx, time.Now().Add(-*grace))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reclaimed %d images\n", n)
	return nil
}

func unreferenced(images []*simplenews.Image, articles []*simplenews.ArticleDetails) []*simplenews.Image {
	referenced := make(map[string]bool)
	for _, a := range articles {
		for _, img := range a.Images {
			referenced[img.ImageID.String()] = true
		}
	}

	var out []*simplenews.Image
	for _, img := range images {
		if !referenced[img.ID.String()] {
			out = append(out, img)
		}
	}
	return out
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
