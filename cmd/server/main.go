package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freedomain/internal/api"
	"freedomain/internal/config"
	"freedomain/internal/database"
	"freedomain/internal/scheduler"
	"freedomain/internal/services"
	"freedomain/internal/store"

	"github.com/gin-gonic/gin"
)

// openStore selects the key-value backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.StorageConfig) (store.KeyValueStore, func(), error) {
	switch cfg.Type {
	case "memory":
		log.Println("Using in-memory storage, data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil

	case "sqlite":
		if err := database.InitDB(cfg); err != nil {
			return nil, nil, err
		}
		log.Println("Database initialized successfully")
		return store.NewGormStore(database.GetDB()), func() {
			if err := database.Close(); err != nil {
				log.Printf("Failed to close database: %v", err)
			}
		}, nil

	case "redis":
		kv, err := store.NewRedisStore(ctx, cfg.RedisURL, "freedomain:")
		if err != nil {
			return nil, nil, err
		}
		log.Println("Connected to Redis")
		return kv, func() {
			if err := kv.Close(); err != nil {
				log.Printf("Failed to close Redis client: %v", err)
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// newProvisioner returns nil when DNS provisioning is disabled
func newProvisioner(cfg *config.DNSConfig) services.Provisioner {
	if !cfg.Enabled {
		log.Println("DNS provisioning disabled")
		return nil
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		timeout = 10 * time.Second
	}

	log.Printf("DNS provisioning enabled for zone %s", cfg.ZoneID)
	return services.NewCloudflareProvisioner(cfg.APIURL, cfg.APIToken, cfg.ZoneID, cfg.TTL, timeout)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	kv, closeStore, err := openStore(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStore()

	collections := store.NewCollections(kv)

	// Token TTL was validated with the config
	tokenTTL, _ := time.ParseDuration(cfg.Auth.TokenTTL)

	// Initialize services
	admin := services.Admin{
		Username: cfg.Admin.Username,
		Password: cfg.Admin.Password,
		Email:    cfg.Admin.Email,
	}
	notifyService := services.NewNotifyService(&cfg.Notifications)
	if !notifyService.Enabled() {
		log.Println("No notification channels enabled")
	}

	securityMonitor := services.NewSecurityMonitor(collections, admin, cfg.Security.Location(), notifyService)
	userService := services.NewUserService(collections, admin, securityMonitor)
	extensionService := services.NewExtensionService(collections, admin, securityMonitor)
	registryService := services.NewRegistryService(collections, admin, userService, extensionService, securityMonitor, newProvisioner(&cfg.DNS))
	paymentService := services.NewPaymentService(collections, admin, registryService, securityMonitor)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, tokenTTL)

	// Seed the extension catalog on first start
	if err := extensionService.Seed(ctx, cfg.Extensions); err != nil {
		log.Fatalf("Failed to seed extensions: %v", err)
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(paymentService, notifyService)
	if err := sched.Start(cfg.Scheduler.DigestInterval); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Setup API routes
	handler := api.NewHandler(userService, extensionService, registryService, paymentService, securityMonitor, authService, cfg.Security.RequestLimit)
	api.SetupRoutes(r, handler)

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
