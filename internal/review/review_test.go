package review

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRefusal(t *testing.T) {
	refusal := &RefusalError{Reason: "SAFETY"}
	if !IsRefusal(refusal) {
		t.Error("direct refusal not recognized")
	}
	if !IsRefusal(fmt.Errorf("batch 3: %w", refusal)) {
		t.Error("wrapped refusal not recognized")
	}
	if IsRefusal(errors.New("connection reset")) {
		t.Error("plain error classified as refusal")
	}
	if IsRefusal(nil) {
		t.Error("nil classified as refusal")
	}
}

func TestNoopJoinsOCRText(t *testing.T) {
	got, err := Noop{}.Review(context.Background(), nil, []string{"page one", "page two"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "page one\n\npage two" {
		t.Errorf("Noop.Review = %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain text", "plain text"},
		{"```markdown\n# Title\n```", "# Title"},
		{"```\nbody\n```", "body"},
		{"  \n```json\n{}\n```\n", "{}"},
	}
	for _, c := range cases {
		if got := stripCodeFences(c.in); got != c.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
