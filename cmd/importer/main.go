// Command importer bulk-ingests a directory of exported bookmark files.
// Supported formats: .url (InternetShortcut), and .txt/.md where the
// first line is the title, the first URL-looking line is the link, and
// the remainder is fallback body text.
package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/linkmind/linkmind/internal/ai"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/fetcher"
	"github.com/linkmind/linkmind/internal/rag"
	"github.com/linkmind/linkmind/internal/vectorindex"
)

// Fetching and embedding dominate import time; more workers would only
// pile onto the backend rate limits.
const numWorkers = 4

type workItem struct {
	contentID string
	title     string
	link      string
	body      string
}

func main() {
	fs := pflag.NewFlagSet("linkmind-importer", pflag.ExitOnError)
	fs.String("dir", ".", "Directory of exported bookmark files")
	fs.String("user", "", "User id to import bookmarks for")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	dir, _ := fs.GetString("dir")
	userID, _ := fs.GetString("user")
	if userID == "" {
		log.Fatal("--user is required")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	clientConfig := &ai.ClientConfig{
		APIKey:      cfg.APIKey,
		EmbedModel:  cfg.EmbedModel,
		AnswerModel: cfg.AnswerModel,
		ProjectID:   cfg.ProjectID,
		Location:    cfg.Location,
		Provider:    ai.Provider(strings.ToLower(cfg.Provider)),
	}

	ctx := context.Background()

	index, err := vectorindex.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer index.Close()

	if err := index.EnsureReady(ctx); err != nil {
		log.Fatal(err)
	}

	client, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatal(err)
	}

	// Imports are operator-initiated, so the interactive per-user quota
	// does not apply; the worker pool is the only throttle.
	fetch := fetcher.New(fetcher.Options{
		AllowedHosts: cfg.AllowedHosts,
		RateLimit:    1 << 20,
		RateWindow:   time.Duration(cfg.FetchRateWindow) * time.Second,
		ReaderAPIURL: cfg.ReaderAPIURL,
		ReaderAPIKey: cfg.ReaderAPIKey,
	})
	svc := rag.NewService(client, index, fetch)

	workChan := make(chan workItem, numWorkers*2)
	var wg sync.WaitGroup
	var mu sync.Mutex
	imported, failed := 0, 0

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				if err := svc.Index(ctx, userID, item.contentID, item.title, item.link, item.body); err != nil {
					zlog.Error().Err(err).Str("link", item.link).Msg("import failed")
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				imported++
				mu.Unlock()
			}
		}()
	}

	walkErr := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				return nil
			}
			item, ok := parseBookmarkFile(path)
			if !ok {
				return nil
			}
			select {
			case workChan <- item:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})

	close(workChan)
	wg.Wait()

	if walkErr != nil {
		log.Fatalf("walk failed: %v", walkErr)
	}
	zlog.Info().Int("imported", imported).Int("failed", failed).Msg("import complete")
}

func parseBookmarkFile(path string) (workItem, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".url" && ext != ".txt" && ext != ".md" {
		return workItem{}, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		zlog.Warn().Err(err).Str("path", path).Msg("failed to read file")
		return workItem{}, false
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	item := workItem{contentID: "import-" + slug(name), title: name}

	switch ext {
	case ".url":
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if v, ok := strings.CutPrefix(line, "URL="); ok {
				item.link = v
				break
			}
		}
	default:
		lines := strings.Split(string(b), "\n")
		var bodyFrom int
		if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" && !isURL(lines[0]) {
			item.title = strings.TrimSpace(strings.TrimLeft(lines[0], "# "))
			bodyFrom = 1
		}
		for i := bodyFrom; i < len(lines); i++ {
			if isURL(lines[i]) {
				item.link = strings.TrimSpace(lines[i])
				bodyFrom = i + 1
				break
			}
		}
		item.body = strings.TrimSpace(strings.Join(lines[bodyFrom:], "\n"))
	}

	if item.link == "" {
		return workItem{}, false
	}
	return item, true
}

func isURL(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func slug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
