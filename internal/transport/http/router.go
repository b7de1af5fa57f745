package http

import (
	"net/http"

	"github.com/care-auth-api/internal/application/account"
	"github.com/care-auth-api/internal/application/credential"
	"github.com/care-auth-api/internal/application/notification"
	"github.com/care-auth-api/internal/application/otp"
	"github.com/care-auth-api/internal/config"
	"github.com/care-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/care-auth-api/internal/infrastructure/jwt"
	s3infra "github.com/care-auth-api/internal/infrastructure/s3"
	"github.com/care-auth-api/internal/infrastructure/smtp"
	"github.com/care-auth-api/internal/infrastructure/sns"
	"github.com/care-auth-api/internal/pkg/cipher"
	"github.com/care-auth-api/internal/transport/http/handler"
	appmiddleware "github.com/care-auth-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	ClientRepo     *dynamo.PrincipalRepo
	WorkerRepo     *dynamo.PrincipalRepo
	AdminRepo      *dynamo.PrincipalRepo
	OTPRepo        *dynamo.OTPRepo
	CredentialRepo *dynamo.CredentialRepo
	Archive        *s3infra.Archive
	Cipher         cipher.CodeCipher
	Mailer         smtp.Mailer
	SMSSender      sns.SMSSender
	JWTProvider    *jwtinfra.Provider
}

// Services bundles the application services the router wires together, so
// main can reuse them outside the request path (purge loop, shutdown).
type Services struct {
	OTP        otp.Service
	Credential credential.Service
	Account    account.Service
	Dispatcher *notification.CodeDispatcher
}

// NewRouter builds the application services and returns the router plus the
// service bundle.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, *Services) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	dispatcher := notification.NewDispatcher(deps.Mailer, deps.SMSSender)

	otpSvc := otp.NewService(otp.ServiceDeps{
		Store:      deps.OTPRepo,
		Cipher:     deps.Cipher,
		Dispatcher: dispatcher,
		Archive:    deps.Archive,
		Policy: otp.Policy{
			TTL:         cfg.OTPTTL,
			CodeLength:  cfg.OTPCodeLength,
			MaxAttempts: cfg.OTPMaxAttempts,
			Retention:   cfg.OTPRetention,
		},
	})
	credSvc := credential.NewService(credential.ServiceDeps{
		Registries: credential.Registries(deps.ClientRepo, deps.WorkerRepo, deps.AdminRepo),
		Store:      deps.CredentialRepo,
		Signer:     deps.JWTProvider,
		TokenTTL:   cfg.TokenTTL,
	})
	accountSvc := account.NewService(account.ServiceDeps{
		Registries:  account.Registries(deps.ClientRepo, deps.WorkerRepo, deps.AdminRepo),
		OTPs:        otpSvc,
		Credentials: credSvc,
	})

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(accountSvc)
	sessionH := handler.NewSessionHandler(credSvc)
	pwH := handler.NewPasswordRecoveryHandler(accountSvc)
	contactH := handler.NewContactChangeHandler(accountSvc)

	authMw := appmiddleware.Auth(deps.JWTProvider, credSvc)

	// 5 requests/second, burst of 10 — applied to every endpoint that can
	// trigger code issuance or a credential check.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Route("/{guard}", func(r chi.Router) {
			r.With(sensitiveRL.Limit).Post("/register", accountH.Register)
			r.With(sensitiveRL.Limit).Post("/confirm-account", accountH.ConfirmAccount)
			r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
			r.With(sensitiveRL.Limit).Post("/password-recovery/{action}", pwH.Action)

			// ── Authenticated routes ─────────────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(authMw)
				r.Use(appmiddleware.RequireGuard())

				r.Post("/sessions/logout", sessionH.Logout)
				r.Post("/sessions/logout-all", sessionH.LogoutAll)
				r.With(sensitiveRL.Limit).Post("/contact-change/{action}", contactH.Action)
			})
		})
	})

	return r, &Services{
		OTP:        otpSvc,
		Credential: credSvc,
		Account:    accountSvc,
		Dispatcher: dispatcher,
	}
}
