package reconciler

import (
	"fmt"
	"strings"

	"github.com/steelcutops/railtube/railtube/manifest"
)

// Mode is the interaction mode of a run. Exactly one is active.
type Mode int

const (
	// Interactive asks before every mutating action.
	Interactive Mode = iota
	// Unattended runs everything without asking.
	Unattended
	// DryRun computes and reports actions without performing them.
	DryRun
)

// ModeFromFlags maps the CLI flags onto a mode; --dry-run wins over --yes.
func ModeFromFlags(dryRun, yes bool) Mode {
	switch {
	case dryRun:
		return DryRun
	case yes:
		return Unattended
	default:
		return Interactive
	}
}

func (m Mode) String() string {
	switch m {
	case Interactive:
		return "interactive"
	case Unattended:
		return "unattended"
	case DryRun:
		return "dry-run"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Selector restricts a run to some sections. The zero value selects all.
type Selector struct {
	names map[string]struct{}
}

var selectable = []string{
	manifest.SectionSystem,
	manifest.SectionApt,
	manifest.SectionSnap,
	manifest.SectionFlatpak,
	manifest.SectionCargo,
	manifest.SectionDeb,
}

// ParseSelector builds a selector from section names, case-insensitively.
// An empty list selects everything.
func ParseSelector(names []string) (Selector, error) {
	s := Selector{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if !isSelectable(name) {
			return Selector{}, fmt.Errorf("unknown section %q (expected one of %s)", raw, strings.Join(selectable, ", "))
		}
		if s.names == nil {
			s.names = map[string]struct{}{}
		}
		s.names[name] = struct{}{}
	}
	return s, nil
}

func isSelectable(name string) bool {
	for _, s := range selectable {
		if s == name {
			return true
		}
	}
	return false
}

func (s Selector) Selected(section string) bool {
	if s.names == nil {
		return true
	}
	_, ok := s.names[strings.ToLower(section)]
	return ok
}

// Strategy is how a section's mutating actions are scheduled.
type Strategy int

const (
	// Sequential runs items in manifest order and stops at the first
	// failure.
	Sequential Strategy = iota
	// ParallelWhenUnattended fans items out to a bounded pool when nobody
	// has to confirm them.
	ParallelWhenUnattended
)

var strategies = map[string]Strategy{
	manifest.SectionSystem:  Sequential,
	manifest.SectionApt:     Sequential,
	manifest.SectionDeb:     Sequential,
	manifest.SectionSnap:    ParallelWhenUnattended,
	manifest.SectionFlatpak: ParallelWhenUnattended,
	manifest.SectionCargo:   ParallelWhenUnattended,
}

// StrategyFor returns the fixed strategy of a section. Unknown sections are
// sequential.
func StrategyFor(section string) Strategy {
	return strategies[section]
}

// Parallel reports whether items run concurrently under mode.
func (s Strategy) Parallel(mode Mode) bool {
	return s == ParallelWhenUnattended && mode == Unattended
}

// FailFast reports whether one failed item ends the section. Parallel-capable
// sections keep going under Interactive since every item was approved on its
// own.
func (s Strategy) FailFast(mode Mode) bool {
	return s == Sequential || mode != Interactive
}

var labels = map[string]string{
	manifest.SectionSystem:  "System",
	manifest.SectionApt:     "APT",
	manifest.SectionSnap:    "Snap",
	manifest.SectionFlatpak: "Flatpak",
	manifest.SectionCargo:   "Cargo",
	manifest.SectionDeb:     "Deb",
}

// Label is the display name of a section.
func Label(section string) string {
	if l, ok := labels[section]; ok {
		return l
	}
	return section
}
