// Package advisor implements the remote advisory assessment: a single
// bounded call to an OpenAI-compatible chat endpoint that may escalate,
// but never lower, the locally computed decision. Every failure mode
// degrades into an Advisory status; nothing in this package can abort a
// scan.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gatescan/gatescan/pkg/httputil"
	"github.com/gatescan/gatescan/pkg/report"
	"github.com/gatescan/gatescan/pkg/risk"
)

// Config selects and authenticates the advisory endpoint. The API key is
// excluded from JSON so a marshaled config can never leak it.
type Config struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider" json:"provider"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	APIKey   string `yaml:"api_key" json:"-"`
	Model    string `yaml:"model" json:"model"`
	TimeoutS int    `yaml:"timeout_s" json:"timeout_s"`
}

const (
	// maxPromptRunes bounds how much raw input is sent upstream.
	maxPromptRunes = 3000
	// maxDetailRunes bounds the error body excerpt kept in a reason.
	maxDetailRunes = 300

	defaultTimeoutS = 8
	minTimeoutS     = 1
	maxTimeoutS     = 120

	promptHeader = "You are a security validator. Return strict JSON with keys " +
		"recommended_decision (allow|warn|block), confidence (0-1), explanation. " +
		"Input: "
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse keeps content raw because providers return it either as a
// plain string or as a list of content blocks.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type contentBlock struct {
	Text json.RawMessage `json:"text"`
}

// Assess runs the advisory call for one scan. The returned Advisory always
// has a status; transport and parse failures are folded into it rather
// than returned as errors.
func Assess(ctx context.Context, raw string, current *report.Report, cfg Config) report.Advisory {
	if !cfg.Enabled {
		return report.Advisory{Enabled: false, Status: report.StatusDisabled}
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	apiKey := strings.TrimSpace(cfg.APIKey)
	model := strings.TrimSpace(cfg.Model)
	if endpoint == "" || apiKey == "" || model == "" {
		return report.Advisory{
			Enabled: true,
			Status:  report.StatusSkipped,
			Reason:  "AI enabled but endpoint/api_key/model is missing",
		}
	}

	reportJSON, err := json.Marshal(current)
	if err != nil {
		return errorResult(fmt.Sprintf("marshaling current report: %v", err))
	}
	prompt := promptHeader + truncateRunes(raw, maxPromptRunes) + "\nCurrent report: " + string(reportJSON)

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("marshaling request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errorResult(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	client := httputil.Client(time.Duration(clampTimeout(cfg.TimeoutS)) * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return errorResult(err.Error())
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return errorResult(err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if detail := truncateRunes(strings.TrimSpace(string(body)), maxDetailRunes); detail != "" {
			reason += ": " + detail
		}
		return errorResult(reason)
	}

	return parseAssessment(body)
}

// parseAssessment validates the response in stages: object body,
// extractable content, salvageable JSON, valid decision. Each failed stage
// maps to its own invalid_response reason so operators can tell which
// part the provider broke.
func parseAssessment(body []byte) report.Advisory {
	var probe any
	if err := json.Unmarshal(body, &probe); err != nil {
		return errorResult(err.Error())
	}
	if _, ok := probe.(map[string]any); !ok {
		return invalidResult("AI response body was not an object")
	}

	content, ok := extractContent(body)
	if !ok {
		return invalidResult("AI response content was missing or invalid")
	}

	parsed, ok := parseModelJSON(content)
	if !ok {
		return invalidResult("AI response was not valid JSON")
	}

	recommendedRaw, _ := parsed["recommended_decision"].(string)
	recommended, ok := risk.ParseDecision(recommendedRaw)
	if !ok {
		return invalidResult("AI recommended_decision was missing or invalid")
	}

	return report.Advisory{
		Enabled:             true,
		Status:              report.StatusOK,
		RecommendedDecision: recommended,
		Confidence:          normalizeConfidence(parsed["confidence"]),
		Explanation:         explanationText(parsed["explanation"]),
	}
}

// extractContent pulls a single text blob out of choices[0].message.content,
// accepting both the plain-string and the content-block list form.
func extractContent(body []byte) (string, bool) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	raw := resp.Choices[0].Message.Content
	if len(raw) == 0 {
		return "", false
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, true
	}

	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}
	var parts []string
	for _, b := range blocks {
		var block contentBlock
		if err := json.Unmarshal(b, &block); err != nil {
			continue
		}
		var text string
		if err := json.Unmarshal(block.Text, &text); err != nil {
			continue
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// stripCodeFence unwraps a response fully enclosed in a fenced code block.
func stripCodeFence(text string) string {
	value := strings.TrimSpace(text)
	if strings.HasPrefix(value, "```") && strings.HasSuffix(value, "```") {
		lines := strings.Split(value, "\n")
		if len(lines) >= 3 {
			return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}
	return value
}

// parseModelJSON tries the whole content first, then the span from the
// first '{' to the last '}' as a salvage path for noisy responses.
func parseModelJSON(content string) (map[string]any, bool) {
	cleaned := stripCodeFence(content)
	candidates := []string{cleaned}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		candidates = append(candidates, cleaned[start:end+1])
	}

	for _, candidate := range candidates {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		if parsed != nil {
			return parsed, true
		}
	}
	return nil, false
}

// normalizeConfidence coerces and clamps to [0, 1]; anything unusable
// becomes the neutral 0.5.
func normalizeConfidence(v any) float64 {
	var confidence float64
	switch value := v.(type) {
	case float64:
		confidence = value
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0.5
		}
		confidence = parsed
	default:
		return 0.5
	}
	if math.IsNaN(confidence) {
		return 0.5
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func explanationText(v any) string {
	switch value := v.(type) {
	case nil:
		return "No explanation."
	case string:
		return value
	default:
		return fmt.Sprintf("%v", value)
	}
}

func errorResult(reason string) report.Advisory {
	return report.Advisory{Enabled: true, Status: report.StatusError, Reason: reason}
}

func invalidResult(reason string) report.Advisory {
	return report.Advisory{Enabled: true, Status: report.StatusInvalidResponse, Reason: reason}
}

func clampTimeout(seconds int) int {
	if seconds == 0 {
		return defaultTimeoutS
	}
	if seconds < minTimeoutS {
		return minTimeoutS
	}
	if seconds > maxTimeoutS {
		return maxTimeoutS
	}
	return seconds
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Escalate merges the advisory recommendation into the local decision.
// The merge is monotonic: it returns the higher of the two in the
// allow < warn < block order, so an advisory can never downgrade a local
// block. Anything but an ok status leaves the decision untouched.
func Escalate(current risk.Decision, adv report.Advisory) risk.Decision {
	if adv.Status != report.StatusOK {
		return current
	}
	recommended, ok := risk.ParseDecision(string(adv.RecommendedDecision))
	if !ok {
		return current
	}
	return risk.MaxDecision(current, recommended)
}
