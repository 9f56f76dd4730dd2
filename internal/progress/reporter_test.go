package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ziadkadry99/clove/internal/rag"
)

func TestNewReporterInCI(t *testing.T) {
	t.Setenv("CI", "true")
	if _, ok := NewReporter(&bytes.Buffer{}).(*CIReporter); !ok {
		t.Error("expected CIReporter when CI is set")
	}

	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	if _, ok := NewReporter(&bytes.Buffer{}).(*TerminalReporter); !ok {
		t.Error("expected TerminalReporter outside CI")
	}
}

func TestCIReporterLines(t *testing.T) {
	var buf bytes.Buffer
	fn := Func(&CIReporter{w: &buf})

	fn(rag.PhaseWalk, 3, 3)
	fn(rag.PhaseEmbed, 10, 25)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{
		"[walk] Walking files: 3/3",
		"[embed] Embedding chunks: 10/25",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestCIReporterFinish(t *testing.T) {
	var buf bytes.Buffer
	r := &CIReporter{w: &buf}
	r.Finish()
	if buf.Len() != 0 {
		t.Errorf("Finish without updates wrote %q", buf.String())
	}
	r.Update(rag.PhaseStore, 1, 1)
	r.Finish()
	if !strings.HasSuffix(buf.String(), "Indexing complete\n") {
		t.Errorf("got %q", buf.String())
	}
}

func TestTerminalReporterSwitchesPhase(t *testing.T) {
	var buf bytes.Buffer
	r := &TerminalReporter{w: &buf}
	r.Update(rag.PhaseEmbed, 5, 10)
	first := r.bar
	r.Update(rag.PhaseEmbed, 10, 10)
	if r.bar != first {
		t.Error("same phase should reuse the bar")
	}
	r.Update(rag.PhaseStore, 10, 10)
	if r.bar == first || r.phase != rag.PhaseStore {
		t.Error("new phase should start a new bar")
	}
	r.Finish()
	if r.bar != nil {
		t.Error("Finish should drop the bar")
	}
}
