package pipeline

import "testing"

func TestCutSentence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		sentence string
		rest     string
		ok       bool
	}{
		{name: "no boundary", in: "Hello there", rest: "Hello there"},
		{name: "boundary mid string", in: "Hello. How are you", sentence: "Hello.", rest: "How are you", ok: true},
		{name: "exclamation", in: "Wow! Really", sentence: "Wow!", rest: "Really", ok: true},
		{name: "question", in: "Why? Because", sentence: "Why?", rest: "Because", ok: true},
		{name: "newline separator", in: "Done.\nNext", sentence: "Done.", rest: "Next", ok: true},
		{name: "terminator at end not a boundary", in: "The answer is 3.", rest: "The answer is 3."},
		{name: "decimal number not split", in: "Pi is 3.14 roughly", rest: "Pi is 3.14 roughly"},
		{name: "empty", in: "", rest: ""},
		{name: "stray terminator dropped", in: ". Hello. World", sentence: "Hello.", rest: "World", ok: true},
		{name: "only terminators", in: ".. ", rest: ""},
		{name: "leading space trimmed", in: "  Hi. there", sentence: "Hi.", rest: "there", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sentence, rest, ok := cutSentence(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if sentence != tt.sentence {
				t.Errorf("sentence = %q, want %q", sentence, tt.sentence)
			}
			if rest != tt.rest {
				t.Errorf("rest = %q, want %q", rest, tt.rest)
			}
		})
	}
}

func TestCutSentenceConsumesAllSentences(t *testing.T) {
	t.Parallel()

	in := "One. Two! Three? Four"
	var got []string
	for {
		sentence, rest, ok := cutSentence(in)
		if !ok {
			break
		}
		got = append(got, sentence)
		in = rest
	}
	want := []string{"One.", "Two!", "Three?"}
	if len(got) != len(want) {
		t.Fatalf("got %d sentences %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
	if in != "Four" {
		t.Errorf("final rest = %q, want %q", in, "Four")
	}
}
