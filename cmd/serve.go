package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline scheduler and trigger API",
	Long:  "Starts the recurring pipeline jobs on their cron schedules and an HTTP API for manual triggers and per-lead actions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		queue := jobs.NewQueue()
		queue.Register(jobs.KindEnrich, cfg.Pipeline.EnrichConcurrency, env.Pipeline.EnrichOne)
		queue.Register(jobs.KindAttach, cfg.Pipeline.AttachConcurrency, env.Pipeline.AttachLead)
		queue.Start(ctx)

		runner := jobs.NewRunner()

		sched := jobs.NewScheduler()
		crons := map[string]struct {
			spec string
			fn   jobs.JobFunc
		}{
			"query-generation": {cfg.Schedule.QueryGeneration, env.Pipeline.GenerateQueries},
			"discovery":        {cfg.Schedule.Discovery, discoverAndEnqueue(env, queue)},
			"analytics-sync":   {cfg.Schedule.AnalyticsSync, env.Pipeline.SyncAnalytics},
			"digest":           {cfg.Schedule.Digest, env.Pipeline.SendDigests},
		}
		for name, c := range crons {
			if err := sched.Add(name, c.spec, c.fn); err != nil {
				return err
			}
		}
		sched.Start(ctx)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/companies", func(w http.ResponseWriter, req *http.Request) {
			var in model.Company
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if in.Name == "" || in.Description == "" {
				writeError(w, http.StatusBadRequest, "name and description are required")
				return
			}
			company, err := env.Store.CreateCompany(req.Context(), in)
			if err != nil {
				zap.L().Error("create company failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "create failed")
				return
			}
			writeJSON(w, http.StatusCreated, company)
		})

		r.Post("/api/companies/{id}/instructions", func(w http.ResponseWriter, req *http.Request) {
			companyID := chi.URLParam(req, "id")
			var in struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.Content == "" {
				writeError(w, http.StatusBadRequest, "content is required")
				return
			}
			if _, err := env.Store.GetCompany(req.Context(), companyID); err != nil {
				writeError(w, http.StatusNotFound, "company not found")
				return
			}
			instruction, err := env.Store.CreateInstruction(req.Context(), companyID, in.Content)
			if err != nil {
				zap.L().Error("create instruction failed", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "create failed")
				return
			}
			writeJSON(w, http.StatusCreated, instruction)
		})

		r.Post("/api/companies/{id}/queries/generate", func(w http.ResponseWriter, req *http.Request) {
			companyID := chi.URLParam(req, "id")
			triggered := runner.Trigger(ctx, "generate:"+companyID, func(ctx context.Context) error {
				return env.Pipeline.GenerateForCompany(ctx, companyID)
			})
			writeTrigger(w, triggered)
		})

		r.Post("/api/queries/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			queryID := chi.URLParam(req, "id")
			triggered := runner.Trigger(ctx, "query:"+queryID, func(ctx context.Context) error {
				return env.Pipeline.RunQuery(ctx, queryID)
			})
			writeTrigger(w, triggered)
		})

		r.Post("/api/leads/{id}/enrich", func(w http.ResponseWriter, req *http.Request) {
			if err := queue.Enqueue(jobs.KindEnrich, chi.URLParam(req, "id")); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		})

		r.Post("/api/leads/{id}/confirm", func(w http.ResponseWriter, req *http.Request) {
			if err := queue.Enqueue(jobs.KindAttach, chi.URLParam(req, "id")); err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		})

		r.Post("/api/sync/analytics", func(w http.ResponseWriter, req *http.Request) {
			triggered := runner.Trigger(ctx, "analytics-sync", env.Pipeline.SyncAnalytics)
			writeTrigger(w, triggered)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		sched.Stop()
		runner.Wait()
		queue.Close()
		return nil
	},
}

// discoverAndEnqueue runs the discovery sweep and feeds every still-pending
// lead into the enrichment queue so new finds get enriched the same cycle.
// The listing is unbounded; a backlog larger than the queue buffer stops
// at the first full-queue rejection and waits for the next cycle.
func discoverAndEnqueue(env *pipelineEnv, queue *jobs.Queue) jobs.JobFunc {
	return func(ctx context.Context) error {
		if err := env.Pipeline.RunDiscovery(ctx); err != nil {
			return err
		}
		leads, err := env.Store.ListLeads(ctx, store.LeadFilter{
			EnrichmentStatus: model.EnrichmentStatusPending,
			Limit:            store.NoLimit,
		})
		if err != nil {
			return eris.Wrap(err, "serve: list pending leads")
		}
		for i, lead := range leads {
			if err := queue.Enqueue(jobs.KindEnrich, lead.ID); err != nil {
				if eris.Is(err, jobs.ErrQueueFull) {
					zap.L().Warn("enrich queue full, deferring backlog",
						zap.Int("deferred", len(leads)-i))
					return nil
				}
				zap.L().Warn("enqueue after discovery failed",
					zap.String("lead_id", lead.ID),
					zap.Error(err),
				)
			}
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeTrigger(w http.ResponseWriter, triggered bool) {
	if !triggered {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
