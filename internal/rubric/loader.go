package rubric

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a rubric document from disk. The format follows the file
// extension; unknown extensions are sniffed yaml-first the way server
// configs are loaded.
func Load(path string) (Rubric, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Rubric{}, fmt.Errorf("read rubric: %w", err)
	}
	return Parse(data, strings.ToLower(filepath.Ext(path)))
}

// Parse decodes, normalizes, and validates a rubric document.
func Parse(data []byte, ext string) (Rubric, error) {
	var r Rubric
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &r); err != nil {
			return Rubric{}, fmt.Errorf("parse yaml rubric: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &r); err != nil {
			return Rubric{}, fmt.Errorf("parse json rubric: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &r); yamlErr != nil {
			if err := json.Unmarshal(data, &r); err != nil {
				return Rubric{}, errors.New("rubric format not recognized (expected yaml/json)")
			}
		}
	}
	normalize(&r)
	if err := Validate(r); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

func normalize(r *Rubric) {
	if r == nil {
		return
	}
	if r.Thresholds.OverallPassPercentage == nil {
		threshold := 70.0
		r.Thresholds.OverallPassPercentage = &threshold
	}
	if *r.Thresholds.OverallPassPercentage < 0 {
		*r.Thresholds.OverallPassPercentage = 0
	}
	if *r.Thresholds.OverallPassPercentage > 100 {
		*r.Thresholds.OverallPassPercentage = 100
	}
	for si := range r.Sections {
		for ni := range r.Sections[si].Nodes {
			normalizeNode(&r.Sections[si].Nodes[ni])
		}
	}
}

func normalizeNode(n *Node) {
	if n.Tolerance != nil {
		if n.Tolerance.Mode == "" {
			n.Tolerance.Mode = ModeAbsolute
		}
		sort.SliceStable(n.Tolerance.PartialCredit, func(i, j int) bool {
			return n.Tolerance.PartialCredit[i].Within < n.Tolerance.PartialCredit[j].Within
		})
	}
	for i := range n.Children {
		normalizeNode(&n.Children[i])
	}
}

// Validate rejects malformed rubrics before any scoring happens. A rubric
// failure is a task-authoring bug, never a candidate mistake.
func Validate(r Rubric) error {
	if len(r.Sections) == 0 {
		return errors.New("rubric has no sections")
	}
	names := map[string]bool{}
	for _, section := range r.Sections {
		name := strings.TrimSpace(section.Name)
		if name == "" {
			return errors.New("rubric section missing name")
		}
		if names[name] {
			return fmt.Errorf("duplicate rubric section %q", name)
		}
		names[name] = true
		if len(section.Nodes) == 0 {
			return fmt.Errorf("section %q has no nodes", name)
		}
		for _, node := range section.Nodes {
			if err := validateNode(name, node); err != nil {
				return err
			}
		}
	}
	if r.Thresholds.PerSectionMinimumPercentage != nil {
		min := *r.Thresholds.PerSectionMinimumPercentage
		if min < 0 || min > 100 {
			return fmt.Errorf("per_section_minimum_percentage %.2f out of range", min)
		}
	}
	return nil
}

func validateNode(section string, n Node) error {
	// A composite may omit its path; children then resolve from the root.
	if n.Kind != KindComposite || strings.TrimSpace(n.Path) != "" {
		if _, err := ParsePath(n.Path); err != nil {
			return fmt.Errorf("section %q: %w", section, err)
		}
	}
	if n.Weight < 0 {
		return fmt.Errorf("section %q node %q: negative weight %.3f", section, n.Path, n.Weight)
	}
	switch n.Kind {
	case KindExact, KindSet, KindSequence, KindCriticalBool:
		if len(n.Children) > 0 {
			return fmt.Errorf("section %q node %q: leaf node has children", section, n.Path)
		}
	case KindNumeric:
		if len(n.Children) > 0 {
			return fmt.Errorf("section %q node %q: leaf node has children", section, n.Path)
		}
		if n.Tolerance == nil || n.Tolerance.Bound <= 0 {
			return fmt.Errorf("section %q node %q: numeric node requires tolerance with positive bound", section, n.Path)
		}
		switch n.Tolerance.Mode {
		case ModeAbsolute, ModeRelative, ModePercentage:
		default:
			return fmt.Errorf("section %q node %q: unknown tolerance mode %q", section, n.Path, n.Tolerance.Mode)
		}
		for _, step := range n.Tolerance.PartialCredit {
			if step.Within <= 0 {
				return fmt.Errorf("section %q node %q: partial credit step requires positive within", section, n.Path)
			}
			if step.Ratio < 0 || step.Ratio > 1 {
				return fmt.Errorf("section %q node %q: partial credit ratio %.3f out of range", section, n.Path, step.Ratio)
			}
		}
	case KindComposite:
		if len(n.Children) == 0 {
			return fmt.Errorf("section %q node %q: composite requires at least one child", section, n.Path)
		}
		for _, child := range n.Children {
			if err := validateNode(section, child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("section %q node %q: unknown kind %q", section, n.Path, n.Kind)
	}
	return nil
}
