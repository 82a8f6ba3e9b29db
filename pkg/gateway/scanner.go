// Package gateway wires the scan pipeline end to end: size gate, cache
// probe, normalize/evaluate/score/decide, optional classifier and advisory
// escalation, then persistence. The fail-safe rule from the error design
// applies at this level: any stage failure or panic degrades to a block
// report with a non-nil error, never a raw fault.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"unicode/utf8"

	"github.com/gatescan/gatescan/pkg/advisor"
	"github.com/gatescan/gatescan/pkg/audit"
	"github.com/gatescan/gatescan/pkg/cache"
	"github.com/gatescan/gatescan/pkg/classifier"
	"github.com/gatescan/gatescan/pkg/config"
	"github.com/gatescan/gatescan/pkg/normalize"
	"github.com/gatescan/gatescan/pkg/recall"
	"github.com/gatescan/gatescan/pkg/report"
	"github.com/gatescan/gatescan/pkg/risk"
	"github.com/gatescan/gatescan/pkg/rules"
)

const Version = "0.1.0"

// Scanner holds the pipeline and its collaborators.
// The catalog and config are fixed at construction; collaborators backed
// by external services are optional and gracefully degrade if unavailable.
type Scanner struct {
	cfg         *config.Config
	catalog     *rules.Catalog
	journal     *audit.Journal         // always available (JSONL append)
	history     audit.History          // journal-derived or PostgreSQL
	cache       *cache.Cache           // optional: requires Redis
	recall      *recall.Corpus         // optional: opt-in similarity corpus
	classifier  *classifier.Classifier // optional: requires ONNX model
	fingerprint string
	stats       Stats
}

// ScanOptions narrows one scan invocation. The zero value runs the
// default pipeline: every detect-mode rule, advisory enabled.
type ScanOptions struct {
	// Rules restricts evaluation to the named rules. Allowlist rules
	// only run when named here.
	Rules []string
	// SkipAdvisory suppresses the remote advisory call for this scan.
	SkipAdvisory bool
}

// defaultScan reports whether the options leave the pipeline untouched.
// Only such scans hit the result cache; a restricted rule set or a
// suppressed advisory produces reports the default path must not serve.
// The nil check mirrors the evaluator: an empty-but-present rule list
// still disables the heuristics, so it is not a default scan.
func (o ScanOptions) defaultScan() bool {
	return o.Rules == nil && !o.SkipAdvisory
}

// BuildCatalog compiles the effective rule catalog: the built-ins with
// any rule packs from dir overlaid. A pack rule that names a built-in
// replaces it; an empty dir yields the stock catalog.
func BuildCatalog(dir string) (*rules.Catalog, []rules.PackInfo, error) {
	if dir == "" {
		return rules.Builtin(), nil, nil
	}
	packRules, infos, err := rules.LoadPacks(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(packRules) == 0 {
		return rules.Builtin(), infos, nil
	}
	return rules.NewCatalog(rules.Merge(rules.AllRules(), packRules)), infos, nil
}

// OpenHistory returns the configured history backend without the rest of
// the pipeline, for read-only queries.
func OpenHistory(ctx context.Context, cfg *config.Config) (audit.History, error) {
	if dsn := cfg.History.PostgresDSN; dsn != "" {
		return audit.NewPostgresHistory(ctx, dsn)
	}
	return audit.NewJournalHistory(cfg.LogPath), nil
}

// New builds a Scanner from a validated config. The journal and history
// store must open; everything else is attempted and logged with its
// startup state.
func New(ctx context.Context, cfg *config.Config) (*Scanner, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	catalog, _, err := BuildCatalog(cfg.RulePacksDir)
	if err != nil {
		return nil, fmt.Errorf("loading rule packs: %w", err)
	}
	if cfg.RulePacksDir != "" {
		log.Printf("✓ Rule packs loaded from %s (catalog: %d rules)", cfg.RulePacksDir, catalog.Len())
	}

	journal, err := audit.NewJournal(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	history, err := OpenHistory(ctx, cfg)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	if cfg.History.PostgresDSN != "" {
		log.Println("✓ History backend: PostgreSQL")
	} else {
		log.Println("○ History backend: journal-derived (no postgres_dsn)")
	}

	s := &Scanner{
		cfg:     cfg,
		catalog: catalog,
		journal: journal,
		history: history,
	}

	names := make([]string, 0, catalog.Len())
	for _, r := range catalog.Rules() {
		names = append(names, r.Name)
	}
	s.fingerprint = cache.Fingerprint(cfg.Thresholds, cfg.Weights, cfg.RuleOverrides, names)

	if cfg.Cache.RedisAddr != "" {
		c, err := cache.New(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTLSeconds)
		if err != nil {
			log.Printf("○ Result cache disabled (redis unavailable: %v)", err)
		} else {
			s.cache = c
			log.Printf("✓ Result cache enabled (redis %s)", cfg.Cache.RedisAddr)
		}
	} else {
		log.Println("○ Result cache disabled (no redis_addr)")
	}

	if cfg.Recall.Enabled {
		corpus, err := recall.New(cfg.Recall.Path)
		if err != nil {
			log.Printf("○ Recall corpus disabled (init failed: %v)", err)
		} else {
			s.recall = corpus
			if cfg.Recall.Path != "" {
				log.Printf("✓ Recall corpus enabled (persisted at %s)", cfg.Recall.Path)
			} else {
				log.Println("✓ Recall corpus enabled (in-memory)")
			}
		}
	} else {
		log.Println("○ Recall corpus disabled")
	}

	if cfg.ML.ModelPath != "" {
		clf, err := classifier.New(cfg.ML.ModelPath, cfg.ML.ONNXLibraryPath)
		if err != nil {
			log.Printf("○ ML classification disabled (init failed: %v)", err)
		} else {
			s.classifier = clf
			log.Printf("✓ ML classification enabled (hugot, model %s)", cfg.ML.ModelPath)
		}
	} else {
		log.Println("○ ML classification disabled (no model configured)")
	}

	if cfg.AI.Enabled {
		log.Printf("✓ Advisory escalation enabled (provider: %s)", cfg.AI.Provider)
	} else {
		log.Println("○ Advisory escalation disabled")
	}

	return s, nil
}

// Scan runs the full pipeline over raw text. The returned report is
// always non-nil; a non-nil error means the report is the fail-safe
// block report rather than a scan result.
func (s *Scanner) Scan(ctx context.Context, raw string, opts ScanOptions) (rep *report.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			rep, err = s.fail(fmt.Sprintf("panic in scan pipeline: %v", r))
		}
	}()

	if utf8.RuneCountInString(raw) > s.cfg.MaxInputChars {
		return s.fail(fmt.Sprintf("Input exceeds max_input_chars=%d", s.cfg.MaxInputChars))
	}

	cacheKey := ""
	if s.cache != nil && opts.defaultScan() {
		cacheKey = cache.Key(report.Digest(raw), s.fingerprint)
		if cached, ok := s.cache.Get(ctx, cacheKey); ok {
			s.stats.observe(cached)
			return cached, nil
		}
	}

	normalized := normalize.Text(raw)
	hits := s.catalog.Evaluate(normalized, s.cfg.Weights, s.cfg.RuleOverrides, opts.Rules)
	score := risk.Score(hits)
	decision := risk.Decide(score, s.cfg.Thresholds)
	rep = report.Build(raw, normalized, hits, score, decision)

	s.annotate(ctx, rep, normalized)

	if !opts.SkipAdvisory {
		adv := advisor.Assess(ctx, raw, rep, s.cfg.AI)
		rep.Advisory = &adv
		if escalated := advisor.Escalate(rep.Decision, adv); escalated != rep.Decision {
			rep.Decision = escalated
			rep.Explanation.Summary = report.Summary(rep.Decision, rep.Score, len(rep.Hits))
		}
	}

	s.persist(ctx, rep)

	if cacheKey != "" {
		s.cache.Put(ctx, cacheKey, rep)
	}
	if s.recall != nil {
		if rerr := s.recall.Record(ctx, rep, normalized); rerr != nil {
			log.Printf("[WARN] Recall record failed: %v", rerr)
		}
	}

	s.stats.observe(rep)
	return rep, nil
}

// annotate attaches the local classifier verdict. When escalation is
// opted in, a confident threat verdict raises the decision under the
// same never-lower rule as the advisory.
func (s *Scanner) annotate(ctx context.Context, rep *report.Report, normalized string) {
	if s.classifier == nil || !s.classifier.Ready() {
		return
	}
	ann, err := s.classifier.Classify(ctx, normalized)
	if err != nil {
		log.Printf("[WARN] ML classification failed: %v", err)
		return
	}
	rep.ML = ann
	if !s.cfg.ML.Escalate {
		return
	}
	if escalated := classifier.Escalate(rep.Decision, ann, s.cfg.ML.Threshold); escalated != rep.Decision {
		rep.Decision = escalated
		rep.Explanation.Summary = report.Summary(rep.Decision, rep.Score, len(rep.Hits))
	}
}

// persist journals and stores a finished report. Failures after the
// report exists are logged, never allowed to override the scan outcome.
func (s *Scanner) persist(ctx context.Context, rep *report.Report) {
	if err := s.journal.Append(rep); err != nil {
		log.Printf("[WARN] Journal append failed: %v", err)
	}
	if err := s.history.Save(ctx, audit.EntryFromReport(rep)); err != nil {
		log.Printf("[WARN] History save failed: %v", err)
	}
}

// fail converts a pipeline failure into the fail-safe block report. The
// error report itself is journaled best-effort.
func (s *Scanner) fail(message string) (*report.Report, error) {
	rep := report.BuildError(message)
	if err := s.journal.Append(rep); err != nil {
		log.Printf("[WARN] Journal append failed for error report: %v", err)
	}
	s.stats.observe(rep)
	return rep, errors.New(message)
}

// History exposes the configured history backend for read-only queries.
func (s *Scanner) History() audit.History { return s.history }

// Recall exposes the similarity corpus, nil when disabled.
func (s *Scanner) Recall() *recall.Corpus { return s.recall }

// Config returns the configuration the scanner was built with.
func (s *Scanner) Config() *config.Config { return s.cfg }

// Close releases every collaborator. The scanner must not be used after.
func (s *Scanner) Close() error {
	var firstErr error
	if err := s.journal.Close(); err != nil {
		firstErr = err
	}
	if err := s.history.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.classifier != nil {
		if err := s.classifier.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats counts scan outcomes for the health endpoint.
type Stats struct {
	scans   atomic.Int64
	allowed atomic.Int64
	warned  atomic.Int64
	blocked atomic.Int64
	errors  atomic.Int64
}

// StatsSnapshot is the JSON shape of the counters.
type StatsSnapshot struct {
	Scans   int64 `json:"scans"`
	Allowed int64 `json:"allowed"`
	Warned  int64 `json:"warned"`
	Blocked int64 `json:"blocked"`
	Errors  int64 `json:"errors"`
}

func (s *Stats) observe(rep *report.Report) {
	s.scans.Add(1)
	if rep.Error != nil {
		s.errors.Add(1)
		return
	}
	switch rep.Decision {
	case risk.DecisionAllow:
		s.allowed.Add(1)
	case risk.DecisionWarn:
		s.warned.Add(1)
	case risk.DecisionBlock:
		s.blocked.Add(1)
	}
}

// StatsSnapshot returns a point-in-time copy of the counters.
func (s *Scanner) StatsSnapshot() StatsSnapshot {
	return StatsSnapshot{
		Scans:   s.stats.scans.Load(),
		Allowed: s.stats.allowed.Load(),
		Warned:  s.stats.warned.Load(),
		Blocked: s.stats.blocked.Load(),
		Errors:  s.stats.errors.Load(),
	}
}
