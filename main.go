package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/raushankrgupta/mystery-message/api"
	"github.com/raushankrgupta/mystery-message/config"
	"github.com/raushankrgupta/mystery-message/utils"
	"github.com/rs/cors"
)

func main() {
	config.LoadConfig()

	// Initialize MongoDB; a connection failure at startup is fatal.
	if err := utils.ConnectMongo(config.MongoURI); err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := utils.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to ensure indexes: %v", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	// Public routes
	mux.HandleFunc("/api/sign-up", api.SignUpHandler)
	mux.HandleFunc("/api/sign-in", api.SignInHandler)
	mux.HandleFunc("/api/verify-code", api.VerifyCodeHandler)
	mux.HandleFunc("/api/check-username-unique", api.CheckUsernameHandler)
	mux.HandleFunc("/api/send-message", api.SendMessageHandler)
	mux.HandleFunc("/api/suggest-messages", api.SuggestMessagesHandler)

	// Protected routes
	mux.HandleFunc("/api/get-messages", api.AuthMiddleware(api.GetMessagesHandler))
	mux.HandleFunc("/api/delete-message/{id}", api.AuthMiddleware(api.DeleteMessageHandler))
	mux.HandleFunc("/api/accept-messages", api.AuthMiddleware(api.AcceptMessagesHandler))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := api.SessionGate(mux)
	handler = c.Handler(handler)
	handler = api.LatencyMiddleware(handler)

	server := &http.Server{
		Addr:    ":" + config.Port,
		Handler: handler,
		// Timeouts prevent resource exhaustion from slow clients. The write
		// timeout leaves headroom for the 30s suggestion call.
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	fmt.Printf("Server starting on port %s...\n", config.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}
