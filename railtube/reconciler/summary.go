package reconciler

import (
	"fmt"
	"io"
	"sync"
)

// SectionReport counts what happened to the items of one section.
type SectionReport struct {
	Section     string
	Skipped     int
	Installed   int
	Reinstalled int
	Declined    int
	Failed      int
	// Planned counts mutating actions a dry run would have taken.
	Planned int
	// Withheld counts items never started because the section was aborted.
	Withheld int
	Aborted  bool

	mu sync.Mutex
}

func (r *SectionReport) record(action Action, err error, declined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case declined:
		r.Declined++
	case err != nil:
		r.Failed++
	case action == Install:
		r.Installed++
	case action == Reinstall:
		r.Reinstalled++
	default:
		r.Skipped++
	}
}

func (r *SectionReport) plan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Planned++
}

func (r *SectionReport) withhold(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Withheld += n
}

// Summary is the outcome of one apply run.
type Summary struct {
	Mode     Mode
	Sections []*SectionReport
}

func (s *Summary) section(name string) *SectionReport {
	r := &SectionReport{Section: name}
	s.Sections = append(s.Sections, r)
	return r
}

// Section returns the report for name, or nil if it was not processed.
func (s *Summary) Section(name string) *SectionReport {
	for _, r := range s.Sections {
		if r.Section == name {
			return r
		}
	}
	return nil
}

// OK reports whether every processed section finished without failures.
func (s *Summary) OK() bool {
	for _, r := range s.Sections {
		if r.Failed > 0 || r.Aborted {
			return false
		}
	}
	return true
}

func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nSummary (%s):\n", s.Mode)
	if len(s.Sections) == 0 {
		fmt.Fprintln(w, "  nothing to do")
		return
	}
	for _, r := range s.Sections {
		var line string
		if s.Mode == DryRun {
			line = fmt.Sprintf("  %-8s skipped=%d would-change=%d", Label(r.Section), r.Skipped, r.Planned)
		} else {
			line = fmt.Sprintf("  %-8s skipped=%d installed=%d reinstalled=%d declined=%d failed=%d",
				Label(r.Section), r.Skipped, r.Installed, r.Reinstalled, r.Declined, r.Failed)
		}
		if r.Withheld > 0 {
			line += fmt.Sprintf(" withheld=%d", r.Withheld)
		}
		if r.Aborted {
			line += " (aborted)"
		}
		fmt.Fprintln(w, line)
	}
}
