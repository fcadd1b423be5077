// Package profile accumulates per-instruction samples from a running
// internal/vm dispatch loop and renders them as a callgrind-format
// text profile (spec §6: "events: Samples, fl=, fn=, cfi=, cfn=,
// calls=, line sample counts"), attributable to source file/line via
// internal/ir's FileRange records. The sampling mechanism itself —
// exactly when and how often the VM ticks the profiler — is the VM's
// business; this package only owns the accumulation and the text
// format.
package profile

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"

	"quill/internal/ir"
)

// SampleInterval is how many dispatch ticks separate two recorded
// samples. Sampling every single instruction would make the profile
// dominated by the sampling itself; the dispatch loop instead "after a
// budgeted number of iterations ... samples the profiler" (spec §4.H).
const SampleInterval = 64

type site struct {
	fn   string
	file string
	line int
}

type edge struct {
	caller, callee string
}

// Profiler accumulates line-sample and call-edge counts across however
// many VM sessions share it. Zero value is ready to use; it is not
// safe for concurrent use by more than one dispatch loop at a time.
type Profiler struct {
	ticks int

	samples   map[site]int
	siteOrder []site

	calls     map[edge]int
	edgeOrder []edge

	calleeFile map[string]string
}

// New returns a Profiler with its accumulators ready.
func New() *Profiler {
	return &Profiler{
		samples:    map[site]int{},
		calls:      map[edge]int{},
		calleeFile: map[string]string{},
	}
}

// Tick is called once per dispatched instruction from the function
// named fn, executing the instruction recorded at fr. Every
// SampleInterval-th tick records a sample; the rest are free.
func (p *Profiler) Tick(fn string, fr ir.FileRange) {
	p.ticks++
	if p.ticks%SampleInterval != 0 {
		return
	}
	s := site{fn: fn, file: fr.File, line: fr.Line}
	if _, ok := p.samples[s]; !ok {
		p.siteOrder = append(p.siteOrder, s)
	}
	p.samples[s]++
	if _, ok := p.calleeFile[fn]; !ok {
		p.calleeFile[fn] = fr.File
	}
}

// RecordCall notes one invocation of callee from caller, rendered as a
// cfn=/calls= pair under the caller's fn= block.
func (p *Profiler) RecordCall(caller, callee string) {
	e := edge{caller, callee}
	if _, ok := p.calls[e]; !ok {
		p.edgeOrder = append(p.edgeOrder, e)
	}
	p.calls[e]++
}

// Write renders everything accumulated so far as a callgrind-format
// profile. session and heapBytes go in the header comment — the
// go-humanize rendering matches internal/gc's debug logger's own
// byte-size formatting.
func (p *Profiler) Write(w io.Writer, session string, heapBytes uint64) error {
	if _, err := fmt.Fprintf(w, "# quill profile, session %s, heap %s\n", session, humanize.Bytes(heapBytes)); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "events: Samples"); err != nil {
		return err
	}

	byFn := map[string][]site{}
	for _, s := range p.siteOrder {
		byFn[s.fn] = append(byFn[s.fn], s)
	}
	outByCaller := map[string][]edge{}
	for _, e := range p.edgeOrder {
		outByCaller[e.caller] = append(outByCaller[e.caller], e)
	}

	written := map[string]bool{}
	for _, s := range p.siteOrder {
		if written[s.fn] {
			continue
		}
		written[s.fn] = true
		if err := p.writeFunc(w, s.fn, byFn, outByCaller); err != nil {
			return err
		}
	}
	return nil
}

func (p *Profiler) writeFunc(w io.Writer, fn string, byFn map[string][]site, outByCaller map[string][]edge) error {
	sites := append([]site(nil), byFn[fn]...)
	sort.Slice(sites, func(i, j int) bool { return sites[i].line < sites[j].line })

	if _, err := fmt.Fprintf(w, "fl=%s\n", sites[0].file); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "fn=%s\n", fn); err != nil {
		return err
	}
	for _, s := range sites {
		if _, err := fmt.Fprintf(w, "%d %d\n", s.line, p.samples[s]); err != nil {
			return err
		}
	}
	for _, e := range outByCaller[fn] {
		if _, err := fmt.Fprintf(w, "cfi=%s\n", p.calleeFile[e.callee]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "cfn=%s\n", e.callee); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "calls=%d 0\n", p.calls[e]); err != nil {
			return err
		}
	}
	return nil
}
