package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/ledger"
	"github.com/susu3304/warikan/internal/money"
	"github.com/susu3304/warikan/internal/token"
	"golang.org/x/oauth2"
)

// Ledger is the engine surface the HTTP API exposes.
type Ledger interface {
	Summary(ctx context.Context, user ledger.UserID) (ledger.Summary, error)
	DebtsOwedToUser(ctx context.Context, user ledger.UserID) ([]ledger.Debt, error)
	DebtsOwedByUser(ctx context.Context, user ledger.UserID) ([]ledger.Debt, error)
	BalanceDebts(ctx context.Context, a, b ledger.UserID) (ledger.BalanceResult, error)
	RequestPayment(ctx context.Context, req ledger.PaymentRequest) (ledger.IssuedPayment, error)
	InspectConfirmation(ctx context.Context, token string) (ledger.Inspection, error)
	ConfirmPayment(ctx context.Context, token string, d ledger.Decision) (ledger.ConfirmResult, error)
	CreateBill(ctx context.Context, b ledger.Bill) error
}

type API struct {
	router      *mux.Router
	ledger      Ledger
	sessions    *token.Signer
	currency    money.Currency
	config      *config.Config
	oauthConfig *oauth2.Config
	discordBase string
	server      *http.Server
}

func New(cfg *config.Config, svc Ledger, sessions *token.Signer, cur money.Currency) *API {
	api := &API{
		router:      mux.NewRouter(),
		ledger:      svc,
		sessions:    sessions,
		currency:    cur,
		config:      cfg,
		discordBase: "https://discord.com/api",
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		},
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(requestIDMiddleware, metricsMiddleware)

	a.router.HandleFunc("/health", a.handleHealth).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Auth endpoints
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	// The token itself is the credential for confirmations
	a.router.HandleFunc("/api/confirmations/{token}", a.handleInspectConfirmation).Methods("GET")
	a.router.HandleFunc("/api/confirmations", a.handleConfirm).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api/debts/{user_id}").Subrouter()
	protected.Use(a.authMiddleware, sameUserMiddleware)

	protected.HandleFunc("/owed-to-me", a.handleOwedToMe).Methods("GET")
	protected.HandleFunc("/i-owe", a.handleIOwe).Methods("GET")
	protected.HandleFunc("/summary", a.handleSummary).Methods("GET")
	protected.HandleFunc("/bills", a.handleCreateBill).Methods("POST")
	protected.HandleFunc("/payment", a.handleRequestPayment).Methods("POST")
	protected.HandleFunc("/balance/{other_id}", a.handleBalance).Methods("POST")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false, // must stay false with a wildcard origin
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("API server listening on http://%s", a.config.WebBind)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
