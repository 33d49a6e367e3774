package front

import "testing"

func TestLexerBasicTokens(t *testing.T) {
	l := NewLexer("int x = 41 + 1; // trailing comment\n")
	var got []Token
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, tok)
		if tok.Kind == TokEOF {
			break
		}
	}

	want := []struct {
		kind TokKind
		text string
	}{
		{TokKeyword, "int"},
		{TokIdent, "x"},
		{TokPunct, "="},
		{TokInt, "41"},
		{TokPunct, "+"},
		{TokInt, "1"},
		{TokPunct, ";"},
		{TokEOF, ""},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Kind != w.kind {
			t.Errorf("token %d: kind = %v, want %v", i, got[i].Kind, w.kind)
		}
		if w.kind == TokInt {
			if got[i].Int != 41 && got[i].Int != 1 {
				t.Errorf("token %d: Int = %d", i, got[i].Int)
			}
		} else if got[i].Text != w.text {
			t.Errorf("token %d: text = %q, want %q", i, got[i].Text, w.text)
		}
	}
}

func TestLexerStringEscapes(t *testing.T) {
	l := NewLexer(`"a\n\"b"`)
	tok, err := l.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if tok.Kind != TokString {
		t.Fatalf("Kind = %v, want TokString", tok.Kind)
	}
	if tok.Text != "a\n\"b" {
		t.Errorf("Text = %q, want %q", tok.Text, "a\n\"b")
	}
}

func TestLexerLongestMatchPunct(t *testing.T) {
	l := NewLexer("<= < == = &&")
	var texts []string
	for {
		tok, err := l.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if tok.Kind == TokEOF {
			break
		}
		texts = append(texts, tok.Text)
	}
	want := []string{"<=", "<", "==", "=", "&&"}
	if len(texts) != len(want) {
		t.Fatalf("got %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, texts[i], want[i])
		}
	}
}
