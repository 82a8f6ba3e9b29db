// Package classifier runs an optional local ONNX text-classification
// model over scan input. The verdict is attached to the report as an
// annotation; it only influences the decision when the deployment has
// opted into classifier escalation, and then only upward.
package classifier

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/gatescan/gatescan/pkg/report"
	"github.com/gatescan/gatescan/pkg/risk"
)

// blockConfidence is the confidence at which an escalating deployment
// blocks outright instead of warning.
const blockConfidence = 0.95

// Classifier wraps a hugot text-classification pipeline.
type Classifier struct {
	session  *hugot.Session
	pipeline *pipelines.TextClassificationPipeline
	mu       sync.RWMutex
	ready    bool
}

// New loads the ONNX model at modelPath. With onnxLibraryPath set it
// prefers the ONNX Runtime backend and falls back to the pure Go backend
// when the runtime cannot be loaded.
func New(modelPath, onnxLibraryPath string) (*Classifier, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model path %s: %w", modelPath, err)
	}

	session, err := newSession(onnxLibraryPath)
	if err != nil {
		return nil, fmt.Errorf("creating hugot session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      "input-threat-classifier",
	})
	if err != nil {
		_ = session.Destroy()
		return nil, fmt.Errorf("creating classification pipeline: %w", err)
	}

	return &Classifier{session: session, pipeline: pipeline, ready: true}, nil
}

func newSession(onnxLibraryPath string) (*hugot.Session, error) {
	if onnxLibraryPath != "" {
		session, err := hugot.NewORTSession(options.WithOnnxLibraryPath(onnxLibraryPath))
		if err == nil {
			log.Printf("[INFO] Classifier using ONNX Runtime backend")
			return session, nil
		}
		log.Printf("[WARN] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}
	return hugot.NewGoSession()
}

// Ready reports whether the pipeline is loaded.
func (c *Classifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Classify runs the model over one text and returns its verdict.
func (c *Classifier) Classify(_ context.Context, text string) (*report.MLAnnotation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready || c.pipeline == nil {
		return nil, fmt.Errorf("classifier not ready")
	}

	result, err := c.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(result.ClassificationOutputs) == 0 || len(result.ClassificationOutputs[0]) == 0 {
		return nil, fmt.Errorf("classifier returned no output")
	}

	out := result.ClassificationOutputs[0][0]
	return &report.MLAnnotation{
		Label:      out.Label,
		Confidence: float64(out.Score),
		Threat:     isThreatLabel(out.Label),
	}, nil
}

// Close destroys the underlying session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			return fmt.Errorf("destroying hugot session: %w", err)
		}
	}
	return nil
}

// isThreatLabel maps the label conventions of the common prompt-injection
// models ("jailbreak"/"benign", "INJECTION"/"LEGITIMATE",
// "LABEL_1"/"LABEL_0") onto a single threat flag.
func isThreatLabel(label string) bool {
	switch label {
	case "jailbreak", "INJECTION", "malicious", "LABEL_1":
		return true
	default:
		return false
	}
}

// Escalate raises the decision for a confident threat verdict: to warn at
// the configured threshold, to block at blockConfidence. Like the
// advisory merge it is monotonic and never lowers the local decision.
func Escalate(current risk.Decision, ann *report.MLAnnotation, threshold float64) risk.Decision {
	if ann == nil || !ann.Threat || ann.Confidence < threshold {
		return current
	}
	recommended := risk.DecisionWarn
	if ann.Confidence >= blockConfidence {
		recommended = risk.DecisionBlock
	}
	return risk.MaxDecision(current, recommended)
}
