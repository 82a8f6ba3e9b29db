package rules

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gatescan/gatescan/pkg/risk"
)

// Pack is one YAML rule pack file: optional metadata plus a rule list.
type Pack struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Author      string `yaml:"author"`
	Rules       []Rule `yaml:"rules"`
}

// PackInfo summarizes a pack file for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Path        string
	Enabled     bool
	RuleCount   int
}

// LoadPacks reads every .yaml/.yml file in dir and returns the usable rules
// plus a summary of each pack seen. Files whose name starts with an
// underscore are listed but not loaded, which lets operators park a pack
// without deleting it. A missing directory is not an error; a malformed
// file or rule is logged and skipped, never fatal.
func LoadPacks(dir string) ([]Rule, []PackInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("reading rule pack dir %s: %w", dir, err)
	}

	var (
		loaded []Rule
		infos  []PackInfo
	)
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			log.Printf("[WARN] Skipping rule pack %s: %v", path, err)
			infos = append(infos, PackInfo{Name: baseName, Path: path, Enabled: enabled})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.Version,
			Path:        path,
			Enabled:     enabled,
			RuleCount:   len(pack.Rules),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if !enabled {
			continue
		}
		for _, r := range pack.Rules {
			if err := checkRule(r); err != nil {
				log.Printf("[WARN] Rule pack %s: dropping rule %q: %v", path, r.Name, err)
				continue
			}
			loaded = append(loaded, r)
		}
	}
	return loaded, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parsing pack: %w", err)
	}
	return &pack, nil
}

// checkRule rejects rules the catalog would silently drop, so pack authors
// get a log line instead of a rule that never fires.
func checkRule(r Rule) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is empty")
	}
	if _, ok := risk.ParseSeverity(string(r.Severity)); !ok {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	if _, ok := ParseMode(string(r.Mode)); !ok {
		return fmt.Errorf("invalid mode %q", r.Mode)
	}
	if len(r.Patterns) == 0 {
		return fmt.Errorf("rule has no patterns")
	}
	return nil
}

// Merge overlays extra rules onto a base list. A rule whose name already
// exists replaces the original in place, keeping its catalog position;
// new names append in order.
func Merge(base, extra []Rule) []Rule {
	merged := make([]Rule, len(base))
	copy(merged, base)
	index := make(map[string]int, len(merged))
	for i, r := range merged {
		index[r.Name] = i
	}
	for _, r := range extra {
		if i, ok := index[r.Name]; ok {
			merged[i] = r
			continue
		}
		index[r.Name] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
