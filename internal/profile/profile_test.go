package profile

import (
	"bytes"
	"strings"
	"testing"

	"quill/internal/ir"
)

func TestTickOnlySamplesEveryInterval(t *testing.T) {
	p := New()
	fr := ir.FileRange{File: "main.ql", Line: 3}
	for i := 0; i < SampleInterval-1; i++ {
		p.Tick("main", fr)
	}
	if len(p.samples) != 0 {
		t.Fatalf("expected no sample before the interval elapses, got %d", len(p.samples))
	}
	p.Tick("main", fr)
	if got := p.samples[site{fn: "main", file: "main.ql", line: 3}]; got != 1 {
		t.Fatalf("expected exactly one sample, got %d", got)
	}
}

func TestWriteRendersCallgrindShape(t *testing.T) {
	p := New()
	fr := ir.FileRange{File: "main.ql", Line: 10}
	for i := 0; i < SampleInterval; i++ {
		p.Tick("main", fr)
	}
	p.RecordCall("main", "helper")
	helperFr := ir.FileRange{File: "main.ql", Line: 20}
	for i := 0; i < SampleInterval; i++ {
		p.Tick("helper", helperFr)
	}

	var buf bytes.Buffer
	if err := p.Write(&buf, "session-1", 1<<20); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"events: Samples",
		"fn=main",
		"10 1",
		"cfn=helper",
		"calls=1 0",
		"fn=helper",
		"20 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}
