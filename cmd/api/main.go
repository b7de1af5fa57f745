package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/care-auth-api/internal/config"
	"github.com/care-auth-api/internal/domain"
	"github.com/care-auth-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/care-auth-api/internal/infrastructure/jwt"
	s3infra "github.com/care-auth-api/internal/infrastructure/s3"
	"github.com/care-auth-api/internal/infrastructure/smtp"
	"github.com/care-auth-api/internal/infrastructure/sns"
	"github.com/care-auth-api/internal/pkg/cipher"
	transporthttp "github.com/care-auth-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// Codes are never stored in clear; a missing cipher key is fatal.
	codeCipher, err := cipher.New(cfg.OTPCipherKey)
	if err != nil {
		log.Fatalf("code cipher: %v", err)
	}

	// Signed bearers embed the credential id, so the provider is required.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	// S3 archive for purged verification records.
	s3Client := s3infra.NewClient(cfg)
	archive := s3infra.NewArchive(s3Client, cfg.ArchiveBucket)

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — graceful fallback).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	deps := &transporthttp.Deps{
		ClientRepo:     dynamo.NewPrincipalRepo(dynamoClient, cfg.DynamoTables.Clients, domain.KindClient),
		WorkerRepo:     dynamo.NewPrincipalRepo(dynamoClient, cfg.DynamoTables.Workers, domain.KindWorker),
		AdminRepo:      dynamo.NewPrincipalRepo(dynamoClient, cfg.DynamoTables.Admins, domain.KindAdmin),
		OTPRepo:        dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPs),
		CredentialRepo: dynamo.NewCredentialRepo(dynamoClient, cfg.DynamoTables.Credentials),
		Archive:        archive,
		Cipher:         codeCipher,
		Mailer:         mailer,
		SMSSender:      smsSender,
		JWTProvider:    jwtProvider,
	}

	router, services := transporthttp.NewRouter(cfg, deps)

	// Background purge: archive and delete verification records past their
	// retention window.
	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-purgeCtx.Done():
				return
			case <-ticker.C:
				if n, err := services.OTP.PurgeExpired(purgeCtx); err != nil {
					log.Printf("WARN: purge failed: %v", err)
				} else if n > 0 {
					log.Printf("purged %d verification records", n)
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopPurge()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	services.Dispatcher.Wait()
	log.Println("Server stopped")
}
