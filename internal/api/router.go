// Package api exposes the curation pipeline over HTTP: async job control,
// result ingestion, review, vocabulary curation and dimension management.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/attribute"
	"github.com/sells-group/curator-cli/internal/dimension"
	"github.com/sells-group/curator-cli/internal/extraction"
	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/review"
	"github.com/sells-group/curator-cli/internal/vocabulary"
)

// defaultQueueLimit caps queue and listing pages when the caller does not
// ask for a specific size.
const defaultQueueLimit = 50

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	gateway    *jobs.Gateway
	pipeline   *extraction.Pipeline
	reviews    *review.Workflow
	vocab      *vocabulary.Normalizer
	dimensions *dimension.Registry
	attributes *attribute.Service
}

// NewHandlers wires the services into one handler set.
func NewHandlers(
	gateway *jobs.Gateway,
	pipeline *extraction.Pipeline,
	reviews *review.Workflow,
	vocab *vocabulary.Normalizer,
	dimensions *dimension.Registry,
	attributes *attribute.Service,
) *Handlers {
	return &Handlers{
		gateway:    gateway,
		pipeline:   pipeline,
		reviews:    reviews,
		vocab:      vocab,
		dimensions: dimensions,
		attributes: attributes,
	}
}

// NewRouter builds the chi router with all routes and middleware. An empty
// corsOrigins allows any origin.
func NewRouter(h *Handlers, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(rt chi.Router) {
		rt.Post("/jobs/start", wrap(h.startJob))
		rt.Get("/jobs/{jobID}/poll", h.pollJob)
		rt.Post("/jobs", wrap(h.createJob))
		rt.Get("/jobs", wrap(h.listJobs))
		rt.Get("/jobs/{jobID}", wrap(h.getJob))
		rt.Patch("/jobs/{jobID}", wrap(h.updateJob))
		rt.Get("/stats", wrap(h.pipelineStats))

		rt.Post("/results", wrap(h.recordResults))
		rt.Get("/results/{resultID}", wrap(h.getResult))
		rt.Post("/review", wrap(h.reviewResult))
		rt.Post("/review/bulk", wrap(h.bulkReview))
		rt.Get("/review/queue", wrap(h.reviewQueue))

		rt.Post("/features", wrap(h.createFeature))
		rt.Get("/features", wrap(h.listFeatures))
		rt.Get("/features/stats", wrap(h.vocabStats))
		rt.Get("/features/resolve", wrap(h.resolveMapping))
		rt.Get("/features/unmapped", wrap(h.unmappedValues))
		rt.Post("/features/suggest", wrap(h.suggestFeatures))
		rt.Post("/features/merge", wrap(h.mergeFeatures))
		rt.Get("/features/export", wrap(h.exportVocabulary))
		rt.Get("/features/{featureID}", wrap(h.getFeature))
		rt.Post("/features/{featureID}/mappings", wrap(h.addMapping))
		rt.Delete("/mappings/{mappingID}", wrap(h.removeMapping))

		rt.Post("/dimensions", wrap(h.createDimension))
		rt.Get("/dimensions", wrap(h.listDimensions))
		rt.Get("/dimensions/{dimensionID}", wrap(h.getDimension))
		rt.Delete("/dimensions/{dimensionID}", wrap(h.deleteDimension))
		rt.Post("/dimensions/{dimensionID}/values", wrap(h.setDimensionValue))
		rt.Post("/dimensions/{dimensionID}/values/bulk", wrap(h.bulkSetDimensionValues))

		rt.Get("/entities/{entityID}/attributes", wrap(h.attributeHistory))
		rt.Post("/entities/{entityID}/attributes", wrap(h.appendAttribute))
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
