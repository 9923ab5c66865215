package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-dispatch/internal/config"
	"github.com/example/trip-dispatch/internal/dispatch"
	"github.com/example/trip-dispatch/internal/fare"
	"github.com/example/trip-dispatch/internal/finder"
	"github.com/example/trip-dispatch/internal/geo"
	"github.com/example/trip-dispatch/internal/identity"
	"github.com/example/trip-dispatch/internal/ingest"
	"github.com/example/trip-dispatch/internal/lifecycle"
	"github.com/example/trip-dispatch/internal/location"
	"github.com/example/trip-dispatch/internal/models"
	"github.com/example/trip-dispatch/internal/payments"
	"github.com/example/trip-dispatch/internal/route"
	"github.com/example/trip-dispatch/internal/storage"
	"github.com/example/trip-dispatch/internal/ws"
)

// Server owns the HTTP surface: the two websocket endpoints, health,
// metrics and the internal payment-record hook. All trip traffic flows
// over the sockets; plain HTTP is operational only.
type Server struct {
	Registry  *ws.Registry
	Engine    *dispatch.Engine
	Lifecycle *lifecycle.Tracker
	Locations *location.Tracker
	Identity  identity.Provider
	Directory geo.Directory
	Payments  *payments.MemoryGateway
	Kafka     *ingest.KafkaProducer

	cfg    config.ServerConfig
	logger *slog.Logger
	router *mux.Router
}

// NewServer wires the full stack from configuration. Each backend falls
// back to an in-process implementation when its address is unset, so the
// binary runs standalone in development.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dir geo.Directory
	if cfg.RedisAddr != "" {
		dir = geo.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		dir = geo.NewMemoryDirectory()
	}

	var store storage.TripStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
	}

	records := payments.NewMemoryGateway()
	var gateway payments.Gateway = records
	var settler payments.Settler = payments.NopSettler{}
	if cfg.StripeAPIKey != "" {
		client := payments.NewStripeClient(cfg.StripeAPIKey)
		gateway = payments.NewStripeGateway(records)
		settler = client
	}

	var routes route.Provider
	switch {
	case cfg.OSRMEndpoint != "":
		routes = route.NewOSRMClient(cfg.OSRMEndpoint)
	case cfg.MapsAPIKey != "":
		g, err := route.NewGoogleRoutes(cfg.MapsAPIKey)
		if err != nil {
			return nil, err
		}
		routes = g
	default:
		routes = route.StraightLine{}
	}

	var provider identity.Provider
	if cfg.JWTSecret != "" {
		provider = identity.NewJWTProvider(cfg.JWTSecret)
	} else {
		provider = &identity.StaticProvider{Tokens: map[string]models.Identity{}}
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	registry := ws.NewRegistry(logger)

	find := finder.New(dir)
	find.RadiusKm = cfg.SearchRadiusKm
	find.Limit = cfg.CandidateLimit

	engine := dispatch.NewEngine(store, routes, fare.NewEstimator(cfg.SurgeMultiplier), find, dir, gateway, registry, logger)
	engine.OfferTTL = cfg.OfferTimeout

	var pub location.Publisher
	if producer != nil {
		pub = producer
	}

	s := &Server{
		Registry:  registry,
		Engine:    engine,
		Lifecycle: lifecycle.NewTracker(store, dir, gateway, settler, registry, logger),
		Locations: location.NewTracker(dir, pub, registry, logger),
		Identity:  provider,
		Directory: dir,
		Payments:  records,
		Kafka:     producer,
		cfg:       cfg,
		logger:    logger,
		router:    mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws/rider", s.handleRiderWS)
	s.router.HandleFunc("/ws/driver", s.handleDriverWS)
	s.router.HandleFunc("/internal/payments", s.handlePaymentRecord).Methods("POST")
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// handlePaymentRecord registers a payment attempt for a trip. The checkout
// flow lives outside this service; it posts the outcome here so the offer
// gate can see it.
func (s *Server) handlePaymentRecord(w http.ResponseWriter, r *http.Request) {
	var p models.Payment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.TripID == "" || p.Method == "" {
		http.Error(w, "trip_id and method are required", http.StatusBadRequest)
		return
	}
	if p.Currency != "" && !models.SupportedCurrency(p.Currency) {
		http.Error(w, "unsupported currency", http.StatusBadRequest)
		return
	}
	s.Payments.Put(p)
	w.WriteHeader(http.StatusNoContent)
}
