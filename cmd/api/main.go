package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/linkmind/linkmind/internal/ai"
	"github.com/linkmind/linkmind/internal/auth"
	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/fetcher"
	"github.com/linkmind/linkmind/internal/rag"
	"github.com/linkmind/linkmind/internal/vectorindex"
	"github.com/linkmind/linkmind/pkg/models"
)

type createBookmarkRequest struct {
	Title string   `json:"title"`
	Link  string   `json:"link"`
	Tags  []string `json:"tags,omitempty"`
	Text  string   `json:"text,omitempty"`
}

type chatRequest struct {
	Question string `json:"question"`
}

func main() {
	fs := pflag.NewFlagSet("linkmind-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Msg("starting linkmind api")

	clientConfig, err := providerConfig(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database)
	if err != nil {
		log.Fatalf("Invalid database URL: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	bm := bookmarks.New(pool)
	if err := bm.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate bookmarks table: %v", err)
	}

	// A vector index failure is not fatal: bookmark CRUD still works, the
	// RAG endpoints return 503 until the index comes back.
	index := vectorindex.NewWithPool(pool)
	ragReady := true
	if err := index.EnsureReady(ctx); err != nil {
		ragReady = false
		logger.Error().Err(err).Msg("vector index unavailable, serving in degraded mode")
	}

	client, err := ai.NewClient(ctx, clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	logger.Info().Int("embedding_dim", client.Dim()).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	fetch := fetcher.New(fetcher.Options{
		AllowedHosts: cfg.AllowedHosts,
		RateLimit:    cfg.FetchRateLimit,
		RateWindow:   time.Duration(cfg.FetchRateWindow) * time.Second,
		ReaderAPIURL: cfg.ReaderAPIURL,
		ReaderAPIKey: cfg.ReaderAPIKey,
	})

	svc := rag.NewService(client, index, fetch)
	verifier := auth.NewVerifier(cfg.Auth.JwtSecret)

	mux := newMux(bm, svc, verifier, ragReady)

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

// newMux registers all routes. Dependencies come in as interfaces (or
// injectable structs) so the routing layer is testable without Postgres.
func newMux(bm bookmarks.BookmarkStore, svc *rag.Service, verifier *auth.Verifier, ragReady bool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/bookmarks", verifier.Middleware(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r)
		switch r.Method {
		case http.MethodGet:
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			list, err := bm.List(ctx, userID)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, list)
		case http.MethodPost:
			if !ragReady {
				http.Error(w, "indexing temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			var req createBookmarkRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(req.Link) == "" {
				http.Error(w, "link is required", http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(req.Title) == "" {
				req.Title = req.Link
			}

			b := models.Bookmark{
				ID:     xid.New().String(),
				UserID: userID,
				Title:  req.Title,
				Link:   req.Link,
				Tags:   req.Tags,
				Text:   req.Text,
			}
			ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
			defer cancel()
			if err := bm.Create(ctx, b); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}

			// Creation and indexing are one logical transaction: when
			// indexing fails the record is removed again (external saga).
			if err := svc.Index(ctx, userID, b.ID, b.Title, b.Link, b.Text); err != nil {
				if derr := bm.Delete(ctx, userID, b.ID); derr != nil {
					hlog.FromRequest(r).Error().Err(derr).Str("bookmark_id", b.ID).Msg("rollback delete failed")
				}
				status, msg := indexErrorStatus(err)
				http.Error(w, msg, status)
				return
			}

			w.WriteHeader(http.StatusCreated)
			writeJSON(w, b)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/bookmarks/", verifier.Middleware(func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserFromContext(r)
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/bookmarks/"), "/")
		if id == "" {
			http.Error(w, "missing bookmark id", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		switch r.Method {
		case http.MethodGet:
			b, err := bm.Find(ctx, userID, id)
			if err != nil {
				if errors.Is(err, bookmarks.ErrNotFound) {
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, b)
		case http.MethodDelete:
			if err := bm.Delete(ctx, userID, id); err != nil {
				if errors.Is(err, bookmarks.ErrNotFound) {
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				http.Error(w, err.Error(), 500)
				return
			}
			if ragReady {
				if err := svc.Unindex(ctx, id); err != nil {
					http.Error(w, err.Error(), http.StatusBadGateway)
					return
				}
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/chat", verifier.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !ragReady {
			http.Error(w, "chat temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		userID := auth.UserFromContext(r)

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		q := strings.TrimSpace(req.Question)
		if q == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}
		if len(q) > rag.MaxQuestionLength {
			http.Error(w, fmt.Sprintf("question exceeds %d characters", rag.MaxQuestionLength), http.StatusBadRequest)
			return
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()
		answer, err := svc.Answer(ctx, userID, q)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("answer failed")
			http.Error(w, "failed to answer question", http.StatusBadGateway)
			return
		}
		writeJSON(w, answer)
		hlog.FromRequest(r).Info().Int("sources", len(answer.Sources)).Dur("dur", time.Since(start)).Msg("answered")
	}))

	return mux
}

func providerConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			ProjectID:   cfg.ProjectID,
			Provider:    ai.ProviderOpenAI,
		}, nil
	case "gemini", "google":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderGemini,
		}, nil
	case "stub":
		return &ai.ClientConfig{Provider: ai.ProviderStub}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// indexErrorStatus maps ingestion failures to HTTP statuses. Blocked URLs
// and rate limits are the caller's fault and say so; everything else is a
// bad gateway.
func indexErrorStatus(err error) (int, string) {
	var blocked *fetcher.BlockedURLError
	if errors.As(err, &blocked) {
		return http.StatusBadRequest, blocked.Error()
	}
	var limited *fetcher.RateLimitError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests, limited.Error()
	}
	return http.StatusBadGateway, "failed to index bookmark content"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", 500)
	}
}
