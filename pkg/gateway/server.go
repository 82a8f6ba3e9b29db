package gateway

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/gatescan/gatescan/pkg/audit"
	"github.com/gatescan/gatescan/pkg/httputil"
)

// scanRequest is the POST /scan body.
type scanRequest struct {
	Text         string   `json:"text"`
	Rules        []string `json:"rules"`
	SkipAdvisory bool     `json:"skip_advisory"`
}

// bodyLimit sizes the HTTP body cap from the configured input limit.
// max_input_chars counts runes; four bytes per rune plus envelope
// headroom covers the worst case before the size gate even runs.
func bodyLimit(maxInputChars int) int {
	const envelope = 64 * 1024
	return maxInputChars*4 + envelope
}

// NewApp builds the fiber application over a scanner. Exposed separately
// from Serve so tests can drive routes without a listener.
func NewApp(s *Scanner) *fiber.App {
	sem := httputil.NewSemaphore(s.cfg.Server.MaxConcurrentScans)

	app := fiber.New(fiber.Config{
		AppName:   "gatescan",
		BodyLimit: bodyLimit(s.cfg.MaxInputChars),
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"version":   Version,
			"stats":     s.StatsSnapshot(),
			"semaphore": sem.Stats(),
		})
	})

	// Scan failures still carry the fail-safe report; 422 signals the
	// caller the same way the CLI's non-zero exit does.
	app.Post("/scan", func(c fiber.Ctx) error {
		var req scanRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Text == "" {
			return c.Status(400).JSON(fiber.Map{"error": "text field is required"})
		}

		if !sem.TryAcquire() {
			return c.Status(503).JSON(fiber.Map{"error": "scan capacity exhausted, retry later"})
		}
		defer sem.Release()

		rep, err := s.Scan(c.Context(), req.Text, ScanOptions{
			Rules:        req.Rules,
			SkipAdvisory: req.SkipAdvisory,
		})
		if err != nil {
			return c.Status(422).JSON(rep)
		}
		return c.JSON(rep)
	})

	app.Get("/history", func(c fiber.Ctx) error {
		limit := audit.DefaultHistoryLimit
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "limit must be an integer"})
			}
			limit = n
		}
		entries, err := s.history.Recent(c.Context(), limit)
		if err != nil {
			log.Printf("[WARN] History query failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "history query failed"})
		}
		return c.JSON(entries)
	})

	app.Get("/similar", func(c fiber.Ctx) error {
		if s.recall == nil {
			return c.Status(404).JSON(fiber.Map{"error": "recall corpus is disabled"})
		}
		q := c.Query("q")
		if q == "" {
			return c.Status(400).JSON(fiber.Map{"error": "q parameter is required"})
		}
		k := 0
		if v := c.Query("k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return c.Status(400).JSON(fiber.Map{"error": "k must be an integer"})
			}
			k = n
		}
		neighbors, err := s.recall.Similar(c.Context(), q, k)
		if err != nil {
			log.Printf("[WARN] Similarity query failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "similarity query failed"})
		}
		return c.JSON(neighbors)
	})

	return app
}

// Serve runs the HTTP server until the listener stops.
func Serve(s *Scanner, addr string) error {
	app := NewApp(s)

	log.Printf("gatescan HTTP server starting on %s", addr)
	log.Printf("Endpoints:")
	log.Printf("  POST /scan     - Scan text and return the decision report")
	log.Printf("  GET  /history  - Recent decisions (limit=)")
	log.Printf("  GET  /similar  - Nearest past scans (q=, k=)")
	log.Printf("  GET  /health   - Liveness, counters, semaphore state")

	return app.Listen(addr)
}
