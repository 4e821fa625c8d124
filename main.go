// Package main implements the TV Alert service: magic-link authentication for
// show subscriptions and a nightly pipeline that emails users when a tracked
// series premieres a new episode.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"tvalert/email"
	"tvalert/pipeline"
	"tvalert/schedule"
	"tvalert/server"
	"tvalert/storage"
	"tvalert/token"
	"tvalert/tvdb"
)

const defaultTVDBBaseURL = "https://api.tvalert.dev/v1"

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	secret := os.Getenv("SECRET_KEY")
	if secret == "" {
		logger.Error("SECRET_KEY environment variable required")
		os.Exit(1)
	}

	localStorage := os.Getenv("LOCAL_STORAGE")
	bucket := os.Getenv("STORAGE_BUCKET")
	baseURL := os.Getenv("BASE_URL")
	clientURL := os.Getenv("CLIENT_URL")

	// Default to local development mode if no bucket specified
	if bucket == "" && localStorage == "" {
		localStorage = "./data"
		logger.Info("No STORAGE_BUCKET set, defaulting to local development mode", "storage_path", localStorage)
	}

	var storageClient *gcs.Client
	if localStorage != "" {
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}
		if clientURL == "" {
			clientURL = "http://localhost:3000"
		}

		if err := os.MkdirAll(localStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
	} else {
		if baseURL == "" {
			logger.Error("BASE_URL environment variable required (e.g., https://your-service.run.app)")
			os.Exit(1)
		}
		if clientURL == "" {
			logger.Error("CLIENT_URL environment variable required")
			os.Exit(1)
		}

		var err error
		storageClient, err = gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	store := storage.New(storageClient, bucket, localStorage, logger)

	provider := mailProvider(ctx, logger)
	sender := email.New(provider, logger, baseURL, nil)

	codec := token.NewCodec(secret, token.DefaultCost)
	issuer := token.NewIssuer(codec, store, sender, logger, nil)
	verifier := token.NewVerifier(codec, store, nil)

	tvdbBase := os.Getenv("TVDB_BASE_URL")
	if tvdbBase == "" {
		tvdbBase = defaultTVDBBaseURL
	}
	lookup := tvdb.New(tvdbBase, os.Getenv("TVDB_API_KEY"), logger)

	dispatcher := pipeline.NewDispatcher(issuer, sender, logger)
	pipe := pipeline.New(store, lookup, dispatcher, logger, nil)

	scheduler := schedule.New(pipe, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	srv := server.New(&server.Config{
		Issuer:        issuer,
		Verifier:      verifier,
		Suppressor:    store,
		Subscriptions: store,
		Lookup:        lookup,
		Runner:        pipe,
		Logger:        logger,
		IsConflict: func(err error) bool {
			return errors.Is(err, storage.ErrAlreadySuppressed)
		},
		ClientURL: clientURL,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := srv.ListenAndServe(port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// mailProvider selects the outbound mail transport from the environment.
// Falls back to the mock provider so local development never sends real mail.
func mailProvider(ctx context.Context, logger *slog.Logger) email.Provider {
	fromAddr := os.Getenv("MAILER_FROM")
	fromName := os.Getenv("MAILER_FROM_NAME")
	if fromName == "" {
		fromName = "TV Alert"
	}

	if apiKey := os.Getenv("BREVO_API_KEY"); apiKey != "" {
		logger.Info("Using Brevo email provider", "from", fromAddr)
		return email.NewBrevoProvider(apiKey, fromAddr, fromName, logger)
	}

	pub, priv := os.Getenv("MAILJET_PUBLIC_KEY"), os.Getenv("MAILJET_PRIVATE_KEY")
	if pub != "" && priv != "" {
		logger.Info("Using Mailjet email provider", "from", fromAddr)
		return email.NewMailjetProvider(pub, priv, fromAddr, fromName, logger)
	}

	if svc, err := initGmailService(ctx); err == nil {
		logger.Info("Using Gmail email provider")
		return email.NewGmailProvider(svc, logger)
	} else {
		logger.Info("No mail credentials found, using mock email provider", "error", err)
	}

	return email.NewMockProvider(logger)
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Try explicit credentials first (for local development or specific use cases)
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// If running in Cloud Run, use Application Default Credentials (ADC).
	// The service account needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}
