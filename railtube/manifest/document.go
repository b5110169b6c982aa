package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ParseError reports malformed manifest input.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse manifest %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type document struct {
	System  *systemDoc        `toml:"system,omitempty"`
	Apt     *listDoc          `toml:"apt,omitempty"`
	Snap    *listDoc          `toml:"snap,omitempty"`
	Flatpak *listDoc          `toml:"flatpak,omitempty"`
	Cargo   *listDoc          `toml:"cargo,omitempty"`
	Deb     *debDoc           `toml:"deb,omitempty"`
	Scripts map[string]string `toml:"scripts,omitempty" validate:"omitempty,dive,keys,notblank,endkeys,notblank"`
}

type systemDoc struct {
	Update bool `toml:"update"`
}

type listDoc struct {
	List []string `toml:"list" validate:"dive,notblank"`
}

type debDoc struct {
	URLs []string `toml:"urls" validate:"dive,required,url"`
}

var validate = newValidator()

// newValidator registers notblank: a whitespace-only entry would otherwise
// trim down to an empty package name.
func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Source resolves a local path or URL to bytes.
type Source interface {
	ReadSource(ctx context.Context, source string) ([]byte, error)
}

// Load reads and parses the manifest at source.
func Load(ctx context.Context, src Source, source string) (*Manifest, error) {
	data, err := src.ReadSource(ctx, source)
	if err != nil {
		return nil, err
	}
	return Parse(data, source)
}

// Parse decodes a TOML manifest and checks it is well-formed.
func Parse(data []byte, source string) (*Manifest, error) {
	var doc document
	meta, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, &ParseError{Source: source, Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}
	if err := validate.Struct(doc); err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}

	m := &Manifest{}
	if doc.System != nil {
		m.System = &SystemSection{Update: doc.System.Update}
	}
	for name, list := range map[string]*listDoc{
		SectionApt:     doc.Apt,
		SectionSnap:    doc.Snap,
		SectionFlatpak: doc.Flatpak,
		SectionCargo:   doc.Cargo,
	} {
		if list != nil {
			m.SetPackages(name, &PackageSection{List: Specs(list.List...)})
		}
	}
	if doc.Deb != nil {
		m.Deb = &DebSection{URLs: append([]string(nil), doc.Deb.URLs...)}
	}
	if meta.IsDefined(SectionScripts) {
		commands := make(map[string]string, len(doc.Scripts))
		for k, v := range doc.Scripts {
			commands[k] = v
		}
		m.Scripts = &ScriptsSection{Commands: commands}
	}
	return m, nil
}

// Encode writes m as TOML. Each line of header is emitted as a leading
// comment.
func Encode(w io.Writer, m *Manifest, header string) error {
	doc := document{}
	if m.System != nil {
		doc.System = &systemDoc{Update: m.System.Update}
	}
	doc.Apt = toListDoc(m.Apt)
	doc.Snap = toListDoc(m.Snap)
	doc.Flatpak = toListDoc(m.Flatpak)
	doc.Cargo = toListDoc(m.Cargo)
	if m.Deb != nil {
		doc.Deb = &debDoc{URLs: append([]string{}, m.Deb.URLs...)}
	}
	if m.Scripts != nil {
		doc.Scripts = m.Scripts.Commands
	}

	var buf bytes.Buffer
	for _, line := range strings.Split(strings.TrimSpace(header), "\n") {
		if line != "" {
			fmt.Fprintf(&buf, "# %s\n", line)
		}
	}
	if buf.Len() > 0 {
		buf.WriteString("\n")
	}
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func toListDoc(s *PackageSection) *listDoc {
	if s == nil {
		return nil
	}
	list := make([]string, 0, len(s.List))
	for _, spec := range s.List {
		list = append(list, spec.String())
	}
	return &listDoc{List: list}
}
