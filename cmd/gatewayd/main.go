// gatewayd serves Binance spot tools over HTTP. Every tool call runs
// through the gateway's validation, rate limiting, and client management,
// and returns a response envelope whatever happens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantarc/binance-gateway/core"
	"github.com/quantarc/binance-gateway/pkg/config"
	"github.com/quantarc/binance-gateway/pkg/gateway"
	"github.com/quantarc/binance-gateway/pkg/metrics"
	"github.com/quantarc/binance-gateway/pkg/ratelimit"
	"github.com/quantarc/binance-gateway/pkg/sanitize"
	toolsbinance "github.com/quantarc/binance-gateway/tools/binance"
)

const maxRequestBody = 1 << 20

var (
	// Flags override the matching environment variables.
	httpAddr  = flag.String("http", "", "HTTP listen address (overrides LISTEN_ADDR)")
	testnet   = flag.Bool("testnet", false, "Use the Spot testnet (overrides USE_TESTNET)")
	perMinute = flag.Int("weight-per-minute", 0, "Request weight budget per minute (overrides RATE_LIMIT_PER_MINUTE)")
	perSecond = flag.Int("calls-per-second", 0, "Raw call budget per second (overrides RATE_LIMIT_PER_SECOND)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[GATEWAY] starting binance tool gateway")

	// The daemon starts even when credentials are absent: every tool call
	// then answers with a validation envelope instead. The limiter and the
	// listen address fall back to defaults in that case.
	startupCfg, cfgErr := loadConfig()
	if cfgErr != nil {
		log.Printf("[CONFIG] %v (tools will fail until the environment is fixed)", cfgErr)
	}

	limiter := ratelimit.New(startupCfg.RatePerMinute, startupCfg.RatePerSecond)
	manager := gateway.NewManager(loadConfig)
	gm := metrics.NewGatewayMetrics()

	var sanitizeFn core.SanitizeFunc
	if cfgErr == nil {
		sanitizeFn = sanitize.New(startupCfg.APIKey, startupCfg.APISecret).Message
	} else {
		sanitizeFn = sanitize.New().Message
	}
	builder := core.NewBuilder(sanitizeFn)

	registry := core.NewToolRegistry()
	toolsbinance.RegisterAllTools(registry, manager)
	gw := gateway.New(registry, limiter, manager, builder, gateway.WithMetrics(gm))

	for _, name := range registry.Names() {
		log.Printf("[GATEWAY] registered tool %s (%s)", name, registry.RiskClass(name))
	}

	addr := startupCfg.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      newMux(gw, registry, limiter, builder, gm),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[HTTP] listening on %s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HTTP] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[GATEWAY] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] shutdown: %v", err)
	}
	log.Println("[GATEWAY] stopped")
}

// loadConfig loads the environment configuration and applies explicit flag
// overrides. The client manager calls it on every request, so overrides
// survive credential rotation.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.ListenAddr = *httpAddr
		case "testnet":
			cfg.UseTestnet = *testnet
		case "weight-per-minute":
			cfg.RatePerMinute = *perMinute
		case "calls-per-second":
			cfg.RatePerSecond = *perSecond
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newMux(gw *gateway.Gateway, registry *core.ToolRegistry, limiter *ratelimit.Limiter, builder *core.Builder, gm *metrics.GatewayMetrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			writeEnvelope(w, builder.Error(core.KindValidation, "request body could not be read"))
			return
		}
		if len(body) > maxRequestBody {
			writeEnvelope(w, builder.Error(core.KindValidation, "request body exceeds 1MiB"))
			return
		}

		env := gw.Execute(r.Context(), name, body)
		if !env.Success {
			log.Printf("[TOOL] %s failed: %s: %s", name, env.Error.Type, env.Error.Message)
		}
		writeEnvelope(w, env)
	})

	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"tools": registry.Names()})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		minuteWeight, secondCalls := limiter.Usage()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "ok",
			"minute_weight": minuteWeight,
			"second_calls":  secondCalls,
		})
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(gm.Registry(), promhttp.HandlerOpts{}))

	return mux
}

func writeEnvelope(w http.ResponseWriter, env *core.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	if !env.Success && env.Error != nil && env.Error.Type == core.KindRateLimit {
		w.WriteHeader(http.StatusTooManyRequests)
	}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("[HTTP] write response: %v", err)
	}
}
