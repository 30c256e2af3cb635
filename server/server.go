package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/toeic4all/question-api/pkg/limiter"
	"github.com/toeic4all/question-api/pkg/query"
	"github.com/toeic4all/question-api/pkg/redisstore"
)

// Version is the API version reported by the health endpoint.
const Version = "1.0.0"

// Server ties the Redis connection, the document store, the cached query
// facade and the rate limiter together behind one HTTP surface.
type Server struct {
	c        *Config
	rdb      *redis.Client
	mongo    *query.MongoService
	queries  *query.CachedService
	limiter  limiter.RateLimiter
	registry *prometheus.Registry
	status   StatusReporter
}

// New connects the backing stores and assembles a ready-to-serve Server.
func New(c *Config) (*Server, error) {
	rdb, err := redisstore.NewClient(c.RedisAddr, c.RedisDB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongo, err := query.NewMongoService(ctx, c.MongoURI, c.MongoDatabase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	l, err := limiter.NewRedisLimiter(rdb,
		limiter.WithMaxRequests(c.RateLimitMax),
		limiter.WithWindow(c.RateLimitWindow()),
		limiter.WithRecorder(limiter.NewPrometheusRecorder(registry)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize rate limiter")
	}

	return &Server{
		c:        c,
		rdb:      rdb,
		mongo:    mongo,
		queries:  query.NewCachedService(mongo, rdb),
		limiter:  l,
		registry: registry,
		status:   mongo,
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	h := newHandlers(s.queries, s.rdb, s.status, s.c.Debug)

	r := mux.NewRouter()
	r.Use(RateLimitMiddleware(s.limiter, s.c.RateLimitMax))

	api := r.PathPrefix("/api/v1").Subrouter()

	p5 := api.PathPrefix("/questions/part5").Subrouter()
	p5.HandleFunc("", h.listPart5).Methods(http.MethodGet)
	p5.HandleFunc("/count", h.countPart5).Methods(http.MethodGet)
	p5.HandleFunc("/categories", h.part5Categories).Methods(http.MethodGet)
	p5.HandleFunc("/subtypes", h.part5Subtypes).Methods(http.MethodGet)
	p5.HandleFunc("/difficulties", h.part5Difficulties).Methods(http.MethodGet)
	p5.HandleFunc("/{id}/answer", h.part5Answer).Methods(http.MethodGet)

	p6 := api.PathPrefix("/questions/part6").Subrouter()
	p6.HandleFunc("", h.listPart6).Methods(http.MethodGet)
	p6.HandleFunc("/count", h.countPart6).Methods(http.MethodGet)
	p6.HandleFunc("/passage-types", h.part6PassageTypes).Methods(http.MethodGet)
	p6.HandleFunc("/difficulties", h.part6Difficulties).Methods(http.MethodGet)
	p6.HandleFunc("/{setID}/questions/{seq}/answer", h.part6Answer).Methods(http.MethodGet)

	p7 := api.PathPrefix("/questions/part7").Subrouter()
	p7.HandleFunc("", h.listPart7).Methods(http.MethodGet)
	p7.HandleFunc("/count", h.countPart7).Methods(http.MethodGet)
	p7.HandleFunc("/set-types", h.part7SetTypes).Methods(http.MethodGet)
	p7.HandleFunc("/passage-types", h.part7PassageTypes).Methods(http.MethodGet)
	p7.HandleFunc("/passage-combinations", h.part7PassageCombinations).Methods(http.MethodGet)
	p7.HandleFunc("/difficulties", h.part7Difficulties).Methods(http.MethodGet)
	p7.HandleFunc("/{setID}/questions/{seq}/answer", h.part7Answer).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/cache", h.clearCache).Methods(http.MethodDelete)
	admin.HandleFunc("/cache/{resource}", h.clearCache).Methods(http.MethodDelete)
	admin.HandleFunc("/system/health", h.health).Methods(http.MethodGet)
	admin.HandleFunc("/system/db-status", h.dbStatus).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/", h.root).Methods(http.MethodGet)

	return r
}

// ListenAndServe starts serving HTTP traffic and blocks until the listener
// fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.c.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	log.Infof("listening on %s", s.c.ListenAddr)
	return srv.ListenAndServe()
}

// Close releases the backing store connections.
func (s *Server) Close(ctx context.Context) {
	if err := s.rdb.Close(); err != nil {
		log.Errorf("failed to close redis connection: %v", err)
	}
	if err := s.mongo.Close(ctx); err != nil {
		log.Errorf("failed to close mongodb connection: %v", err)
	}
}
