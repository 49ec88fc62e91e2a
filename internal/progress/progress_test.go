package progress

import (
	"bytes"
	"strings"
	"testing"
)

func TestBarRendersPercentAndCounts(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "classify", 4)
	b.Set(2)
	b.Finish()

	out := buf.String()
	if !strings.Contains(out, "classify") {
		t.Errorf("label missing from %q", out)
	}
	if !strings.Contains(out, "(2/4)") {
		t.Errorf("counts missing from %q", out)
	}
	if !strings.Contains(out, " 50%") {
		t.Errorf("percent missing from %q", out)
	}
	if !strings.Contains(out, "█") || !strings.Contains(out, "░") {
		t.Errorf("bar blocks missing from %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("Finish must terminate the line")
	}
}

func TestBarCompletion(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "fetch", 3)
	for i := 0; i < 3; i++ {
		b.Increment()
	}
	b.Finish()

	out := buf.String()
	if !strings.Contains(out, "100%") || !strings.Contains(out, "(3/3)") {
		t.Errorf("completed bar = %q", out)
	}
	if strings.Contains(out, "░"+"] 100%") {
		t.Errorf("full bar still shows empty blocks: %q", out)
	}
}

func TestBarWithoutTotal(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, "discover", 0)
	b.Increment()
	b.Finish()

	out := buf.String()
	if !strings.Contains(out, "discover 1") {
		t.Errorf("counter mode output = %q", out)
	}
	if strings.Contains(out, "%") && strings.Contains(out, "ETA") {
		t.Errorf("counter mode should not render a bar: %q", out)
	}
}
