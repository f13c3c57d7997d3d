package speech

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"odiadev-tts-server-go/internal/domain/audio"
	"odiadev-tts-server-go/internal/domain/engine"
	httptransport "odiadev-tts-server-go/internal/transport/http"
)

const healthTimeout = 2 * time.Second

type breakerReporter interface {
	BreakerState() engine.BreakerState
}

// handleRoot describes the service.
// @Summary Service information
// @Tags Status
// @Produce json
// @Success 200 {object} httptransport.APIResponse
// @Router / [get]
func (s *Service) handleRoot(c *gin.Context) {
	info := gin.H{
		"service":       serviceName,
		"version":       s.version,
		"description":   "Realistic conversational Nigerian voices with voice cloning",
		"voices":        s.voices.IDs(),
		"default_voice": s.speech.DefaultVoice(),
		"formats":       []audio.Format{audio.FormatWAV, audio.FormatMP3},
		"features":      []string{"Voice Cloning", "Multilingual", "Conversational", "Nigerian Accents"},
		"tiers":         s.ledger.Plans(),
		"cache":         s.cache.Stats(),
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"endpoints": gin.H{
			"speak":       "/speak?text=Hello&voice=en-NG-EzinneNeural",
			"voices":      "/voices",
			"clone_voice": "/clone-voice",
			"health":      "/health",
			"stats":       "/stats",
			"test":        "/test",
			"docs":        "/docs",
		},
	}
	if totals, err := s.ledger.Totals(c.Request.Context()); err == nil {
		info["usage"] = totals
	} else {
		s.logger.WarnTag("HTTP", "usage totals unavailable: %v", err)
	}
	httptransport.RespondSuccess(c, http.StatusOK, info, "")
}

// handleHealth reports readiness of the engine and the storage tiers.
// @Summary Readiness check
// @Tags Status
// @Produce json
// @Success 200 {object} httptransport.APIResponse
// @Failure 503 {object} httptransport.APIResponse
// @Router /health [get]
func (s *Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	ready := true
	checks := gin.H{}

	engineCheck := gin.H{"name": s.engine.Name(), "status": "ok"}
	if err := s.engine.HealthCheck(ctx); err != nil {
		ready = false
		engineCheck["status"] = "unavailable"
		engineCheck["error"] = err.Error()
	}
	if b, ok := s.engine.(breakerReporter); ok {
		engineCheck["breaker"] = b.BreakerState().String()
	}
	checks["engine"] = engineCheck

	cacheCheck := gin.H{"status": "ok", "stats": s.cache.Stats()}
	if err := s.cache.HealthCheck(ctx); err != nil {
		ready = false
		cacheCheck["status"] = "unavailable"
		cacheCheck["error"] = err.Error()
	}
	checks["cache"] = cacheCheck

	usageCheck := gin.H{"status": "ok"}
	if stats, err := s.ledger.StoreStats(ctx); err != nil {
		ready = false
		usageCheck["status"] = "unavailable"
		usageCheck["error"] = err.Error()
	} else {
		usageCheck["store"] = stats
	}
	checks["usage"] = usageCheck

	if s.clone != nil {
		checks["clone"] = gin.H{"status": "ok", "pending": s.clone.Pending()}
	}
	checks["host"] = hostStats(ctx)

	status, state := http.StatusOK, "ready"
	if !ready {
		status, state = http.StatusServiceUnavailable, "degraded"
		s.logger.WarnTag("HTTP", "health check degraded")
	}
	httptransport.RespondSuccess(c, status, gin.H{
		"status":  state,
		"voices":  s.voices.Len(),
		"version": s.version,
		"checks":  checks,
	}, state)
}

// hostStats is informational only and never fails the health check.
func hostStats(ctx context.Context) gin.H {
	host := gin.H{}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		host["memory_total"] = vm.Total
		host["memory_available"] = vm.Available
		host["memory_used_percent"] = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		host["load1"] = avg.Load1
		host["load5"] = avg.Load5
		host["load15"] = avg.Load15
	}
	return host
}

// handleStats returns the caller's usage for the current period.
// @Summary Usage for an API key
// @Tags Status
// @Produce json
// @Param api_key query string false "API key (or X-API-Key header)"
// @Success 200 {object} httptransport.APIResponse
// @Failure 401 {object} httptransport.APIResponse
// @Router /stats [get]
func (s *Service) handleStats(c *gin.Context) {
	key := apiKey(c, c.Query("api_key"))
	if key == "" {
		key = s.speech.DefaultAPIKey()
	}
	acct, plan, err := s.ledger.Snapshot(c.Request.Context(), key)
	if err != nil {
		s.respondError(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, gin.H{
		"tier":                   acct.Tier,
		"requests_used":          acct.RequestsUsed,
		"requests_limit":         acct.RequestsLimit,
		"requests_remaining":     acct.Remaining(),
		"characters_used":        acct.CharactersUsed,
		"synthesized_characters": acct.SynthesizedCharacters,
		"cache_hits":             acct.CacheHits,
		"failures":               acct.Failures,
		"period_start":           acct.PeriodStart,
		"period":                 plan.Period,
		"max_text_chars":         plan.MaxTextChars,
	}, "")
}
