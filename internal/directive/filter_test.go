package directive

import (
	"strings"
	"testing"
)

func TestStreamFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"plain", []string{"Hello, ", "designer."}, "Hello, designer."},
		{"whole tags", []string{`Hi <mem_set>{"a":1}</mem_set>there<mem>x</mem><state>S</state>`}, "Hi there"},
		{"split opener", []string{"a <mem_", `get>url</mem_`, "get> b"}, "a  b"},
		{"split mem block", []string{"x<me", `m>{"html":"<p>"}</m`, "em>y"}, "xy"},
		{"angle text", []string{"1 < 2 and <b>bold</b>"}, "1 < 2 and <b>bold</b>"},
		{"prefix then text", []string{"<st", "rong>"}, "<strong>"},
		{"unterminated", []string{"a <state>FETCH"}, "a <state>FETCH"},
		{"trailing partial", []string{"end <mem"}, "end <mem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var f StreamFilter
			var got strings.Builder
			for _, c := range tt.chunks {
				got.WriteString(f.Write(c))
			}
			got.WriteString(f.Flush())
			if got.String() != tt.want {
				t.Errorf("filtered = %q, want %q", got.String(), tt.want)
			}
		})
	}
}

func TestStreamFilter_HoldsOpenTag(t *testing.T) {
	t.Parallel()

	var f StreamFilter
	if got := f.Write(`ok <mem_set>{"title":`); got != "ok " {
		t.Fatalf("Write = %q", got)
	}
	if got := f.Write(`"T"}`); got != "" {
		t.Errorf("payload leaked: %q", got)
	}
	if got := f.Write("</mem_set>!"); got != "!" {
		t.Errorf("Write = %q", got)
	}
}
