package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/aett-transit/ticket-service/internal/audit"
	"github.com/aett-transit/ticket-service/internal/config"
	"github.com/aett-transit/ticket-service/internal/database"
	"github.com/aett-transit/ticket-service/internal/handler"
	"github.com/aett-transit/ticket-service/internal/kafka"
	"github.com/aett-transit/ticket-service/internal/ledger"
	"github.com/aett-transit/ticket-service/internal/router"
	"github.com/aett-transit/ticket-service/internal/service"
	"github.com/aett-transit/ticket-service/internal/storage"
	"github.com/aett-transit/ticket-service/internal/token"
)

// API is the HTTP application (api mode).
type API struct {
	cfg      *config.Config
	httpSrv  *http.Server
	producer *kafka.Producer
}

// NewAPI loads state and wires the service. A missing or corrupt state
// file starts empty with a warning; only a missing secret is fatal.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	store := storage.NewFileStore(cfg.StateFile)
	st, err := store.Load()
	if err != nil {
		log.Printf("WARNING: state load failed, starting empty (chain continuity and scan history lost): %v", err)
	}
	chain := ledger.NewChain([]byte(cfg.ChainSecret))
	chain.Restore(st.LastChainHash)
	scans := ledger.NewScans()
	scans.Restore(st.FirstScan)

	recorder := audit.NewRecorder(nil)
	if cfg.AuditEnabled() {
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			log.Printf("WARNING: audit migrate failed, issuance trail disabled: %v", err)
		} else if db, err := database.Open(cfg.DSN()); err != nil {
			log.Printf("WARNING: audit database open failed, issuance trail disabled: %v", err)
		} else {
			recorder = audit.NewRecorder(db)
		}
	}

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic)

	svc := service.NewTicketService(service.Deps{
		Codec:  token.NewCodec([]byte(cfg.TicketSecret), cfg.Issuer),
		Chain:  chain,
		Scans:  scans,
		Store:  store,
		Audit:  recorder,
		Events: producer,
		Issuer: cfg.Issuer,
	})

	ticketHandler := handler.NewTicketHandler(svc)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler, svc, cfg.APIKey),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		httpSrv:  httpSrv,
		producer: producer,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (a *API) Run(ctx context.Context) error {
	defer func() {
		if err := a.producer.Close(); err != nil {
			log.Printf("kafka: close: %v", err)
		}
	}()

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.httpSrv.Addr)
	log.Printf("  Swagger UI:    %s/swagger", base)
	log.Printf("  Swagger spec:  %s/swagger/openapi.json", base)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Buy:           POST %s/tickets/buy", base)
	log.Printf("  Verify:        POST %s/tickets/verify", base)
	log.Printf("issuer=%q state=%s audit=%v", a.cfg.Issuer, a.cfg.StateFile, a.cfg.AuditEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
