package rules

import (
	"sync"

	"github.com/gatescan/gatescan/pkg/risk"
)

// defaultRules are the detect-mode rules every unrestricted scan runs.
func defaultRules() []Rule {
	return []Rule{
		{
			Name:        "SQLI_KEYWORD",
			Severity:    risk.SeverityHigh,
			Description: "Potential SQL keywords/operators.",
			Patterns: []string{
				`\bselect\b`,
				`\bunion\b`,
				`\bdrop\b`,
				`\binsert\b`,
				`\bupdate\b`,
				`\bdelete\b`,
				`\bwhere\b`,
				`\bfrom\b`,
				`\btable\b`,
				`\bor\s+1=1\b`,
				`--`,
				`/\*`,
				`\bexec\b`,
				`\bcast\b`,
				`\bconvert\b`,
				`\bchar\b`,
				`\bconcat\b`,
				`\bsubstr\b`,
				`\bmid\b`,
				`\bbenchmark\b`,
				`\bsleep\b`,
				`\bwaitfor\b`,
				`\bpg_sleep\b`,
				`\bpg_terminate_backend\b`,
			},
			Tags: []string{"injection", "sqli"},
		},
		{
			Name:        "COMMAND_INJECTION",
			Severity:    risk.SeverityHigh,
			Description: "Shell command chaining/metacharacters.",
			Patterns: []string{
				`(?:;|&&|\|\|)\s*[a-zA-Z_./-]+`,
				"`[^`]+`",
				`\$\([^)]*\)`,
				`(?:^|[\s;|&])(?:bash|sh|zsh|cmd|powershell|pwsh|python|perl|ruby|wget|curl|nc|netcat)\b`,
				`(?:^|[\s;|&])(?:cat|type|echo|printf)\b[^\n\r]*(?:>>?|<)\s*\S+`,
				`\x00`,
				`\x1a`,
				`\x1b`,
				`\x7f`,
			},
			Tags: []string{"command-execution"},
		},
		{
			Name:        "XSS_PATTERN",
			Severity:    risk.SeverityMedium,
			Description: "Script/event handler patterns.",
			Patterns: []string{
				`<\s*script`,
				`onerror\s*=`,
				`onload\s*=`,
				`javascript:`,
				`<iframe`,
				`<img`,
				`<svg`,
				`<object`,
				`<embed`,
				`<link`,
				`<body`,
				`<style`,
				`<base`,
				`<form`,
				`document\.cookie`,
				`document\.location`,
				`window\.location`,
				`eval\(`,
				`alert\(`,
				`src\s*=\s*['"]?javascript:`,
			},
			Tags: []string{"script-injection", "xss"},
		},
		{
			Name:        "PATH_TRAVERSAL",
			Severity:    risk.SeverityMedium,
			Description: "Traversal indicators.",
			Patterns: []string{
				`\.\./`,
				`\.\.\\`,
				`%2e%2e%2f`,
				`%2e%2e%5c`,
				`/etc/passwd`,
				`/windows/win.ini`,
				`\bboot\.ini\b`,
			},
			Tags: []string{"path-traversal"},
		},
	}
}

// optionalFormatRules are allowlist-mode validators. They only run when a
// scan names them explicitly.
func optionalFormatRules() []Rule {
	return []Rule{
		{
			Name:        "CSRF_TOKEN_FORMAT",
			Severity:    risk.SeverityHigh,
			Description: "CSRF token must be a valid UUID or hex string.",
			Patterns:    []string{`^(?:[a-fA-F0-9]{32}|[a-fA-F0-9\-]{36})$`},
			Tags:        []string{"token-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "INTEGER_ONLY",
			Severity:    risk.SeverityHigh,
			Description: "Input must be a valid integer.",
			Patterns:    []string{`^-?\d+$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "FLOAT_ONLY",
			Severity:    risk.SeverityHigh,
			Description: "Input must be a valid float.",
			Patterns:    []string{`^-?\d+(\.\d+)?$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "EMAIL_FORMAT",
			Severity:    risk.SeverityMedium,
			Description: "Input must be a valid email address.",
			Patterns:    []string{`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "URL_FORMAT",
			Severity:    risk.SeverityMedium,
			Description: "Input must be a valid URL.",
			Patterns:    []string{`^(https?|ftp)://[\w\-]+(\.[\w\-]+)+([/?#][^\s]*)?$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "DATE_ISO8601",
			Severity:    risk.SeverityMedium,
			Description: "Input must be a valid ISO 8601 date.",
			Patterns:    []string{`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?)?$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
		{
			Name:        "SAFE_FILE_PATH",
			Severity:    risk.SeverityHigh,
			Description: "File path must be safe (no traversal, only allowed chars, no leading slash).",
			// Accepts any run of [\w\-./] that neither starts with a slash
			// nor contains "../". RE2 has no lookahead, so the dot runs are
			// spelled out: a run of two or more dots must be followed by a
			// word character, never a slash.
			Patterns: []string{`^(?:(?:[\w\-]|\.[\w\-/]|\.{2,}[\w\-])(?:[\w\-/]|\.[\w\-/]|\.{2,}[\w\-])*\.*|\.+)$`},
			Tags:     []string{"format-validation"},
			Mode:     ModeAllowlist,
		},
		{
			Name:        "SAFE_CHARSET",
			Severity:    risk.SeverityMedium,
			Description: "Input must only contain safe printable characters.",
			Patterns:    []string{`^[\x20-\x7E]+$`},
			Tags:        []string{"format-validation"},
			Mode:        ModeAllowlist,
		},
	}
}

// AllRules returns the full builtin rule list, detection rules first.
func AllRules() []Rule {
	return append(defaultRules(), optionalFormatRules()...)
}

var (
	builtinOnce    sync.Once
	builtinCatalog *Catalog
)

// Builtin returns the shared catalog of stock rules. It is compiled once
// and safe for concurrent use.
func Builtin() *Catalog {
	builtinOnce.Do(func() {
		builtinCatalog = NewCatalog(AllRules())
	})
	return builtinCatalog
}
