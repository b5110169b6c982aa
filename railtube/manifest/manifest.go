// Package manifest holds the declared desired state of a host: which
// backends to touch and what each of them should have installed.
package manifest

import (
	"sort"
	"strings"
)

// Section names, as they appear in the TOML document and in --only.
const (
	SectionSystem  = "system"
	SectionApt     = "apt"
	SectionSnap    = "snap"
	SectionFlatpak = "flatpak"
	SectionCargo   = "cargo"
	SectionDeb     = "deb"
	SectionScripts = "scripts"
)

// PackageSections lists the list-style sections in processing order.
var PackageSections = []string{SectionApt, SectionSnap, SectionFlatpak, SectionCargo}

// Manifest is the parsed document. A nil section means "do not touch".
type Manifest struct {
	System  *SystemSection
	Apt     *PackageSection
	Snap    *PackageSection
	Flatpak *PackageSection
	Cargo   *PackageSection
	Deb     *DebSection
	Scripts *ScriptsSection
}

type SystemSection struct {
	Update bool
}

type PackageSection struct {
	List []PackageSpec
}

type DebSection struct {
	URLs []string
}

type ScriptsSection struct {
	Commands map[string]string
}

// Names returns the script names in sorted order.
func (s *ScriptsSection) Names() []string {
	names := make([]string, 0, len(s.Commands))
	for name := range s.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Packages returns the list section called name, or nil.
func (m *Manifest) Packages(name string) *PackageSection {
	switch name {
	case SectionApt:
		return m.Apt
	case SectionSnap:
		return m.Snap
	case SectionFlatpak:
		return m.Flatpak
	case SectionCargo:
		return m.Cargo
	}
	return nil
}

// SetPackages installs section under name. Unknown names are ignored.
func (m *Manifest) SetPackages(name string, section *PackageSection) {
	switch name {
	case SectionApt:
		m.Apt = section
	case SectionSnap:
		m.Snap = section
	case SectionFlatpak:
		m.Flatpak = section
	case SectionCargo:
		m.Cargo = section
	}
}

// PackageSpec is one list entry: `name`, `name=version`, or for Snap
// `name --flag ...`. The raw text is kept as written.
type PackageSpec struct {
	raw string
}

func ParseSpec(raw string) PackageSpec {
	return PackageSpec{raw: strings.TrimSpace(raw)}
}

// Specs parses each entry of raw.
func Specs(raw ...string) []PackageSpec {
	specs := make([]PackageSpec, 0, len(raw))
	for _, r := range raw {
		specs = append(specs, ParseSpec(r))
	}
	return specs
}

func (p PackageSpec) String() string {
	return p.raw
}

// Ident is the first whitespace token, version suffix included.
func (p PackageSpec) Ident() string {
	fields := strings.Fields(p.raw)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Name is the identifier used for lookups against installed state.
func (p PackageSpec) Name() string {
	name, _, _ := strings.Cut(p.Ident(), "=")
	return name
}

// Version returns the pinned version, if any. It is never normalized.
func (p PackageSpec) Version() (string, bool) {
	_, version, ok := strings.Cut(p.Ident(), "=")
	if !ok {
		return "", false
	}
	return version, true
}

// Flags returns the whitespace-separated tokens after the identifier.
func (p PackageSpec) Flags() []string {
	fields := strings.Fields(p.raw)
	if len(fields) < 2 {
		return nil
	}
	return fields[1:]
}
