package lexer

import "testing"

func scan(src string) []Token {
	s := NewScanner("test.ql", src)
	return s.ScanTokens()
}

func typesOf(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func assertTypes(t *testing.T, src string, want ...TokenType) {
	t.Helper()
	got := typesOf(scan(src))
	want = append(want, TokenEOF)
	if len(got) != len(want) {
		t.Fatalf("scan(%q): got %v, want %v", src, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scan(%q): token %d: got %s, want %s", src, i, got[i], want[i])
		}
	}
}

func TestScanKeywordsAndIdentifiers(t *testing.T) {
	assertTypes(t, "fn method var const if else return",
		TokenFn, TokenMethod, TokenVar, TokenConst, TokenIf, TokenElse, TokenReturn)
	assertTypes(t, "while for break continue new in is instanceof",
		TokenWhile, TokenFor, TokenBreak, TokenContinue, TokenNew, TokenIn, TokenIs, TokenInstance)
	assertTypes(t, "foo_bar", TokenIdent)
}

func TestScanConditionalAccessOperators(t *testing.T) {
	assertTypes(t, "a?.b", TokenIdent, TokenQuestionDot, TokenIdent)
	assertTypes(t, "a?(b)", TokenIdent, TokenQuestionCall, TokenIdent, TokenRParen)
	assertTypes(t, "a?[b]", TokenIdent, TokenQuestionIndex, TokenIdent, TokenRBracket)
	assertTypes(t, "a ? b : c", TokenIdent, TokenQuestion, TokenIdent, TokenColon, TokenIdent)
}

func TestScanStringEscapes(t *testing.T) {
	tokens := scan(`"hi\nthere"`)
	if tokens[0].Type != TokenString || tokens[0].Lexeme != "hi\nthere" {
		t.Fatalf("got %v", tokens[0])
	}
}

func TestScanUnterminatedStringIsAnError(t *testing.T) {
	s := NewScanner("test.ql", `"oops`)
	s.ScanTokens()
	if len(s.Errors) == 0 {
		t.Fatal("expected an unterminated-string error")
	}
}

func TestScanNumberWithFraction(t *testing.T) {
	tokens := scan("3.14")
	if tokens[0].Type != TokenNumber || tokens[0].Lexeme != "3.14" {
		t.Fatalf("got %v", tokens[0])
	}
}

func TestScanLineComment(t *testing.T) {
	assertTypes(t, "1 // trailing comment\n2", TokenNumber, TokenNumber)
}

func TestScanNonASCIIIdentifier(t *testing.T) {
	assertTypes(t, "café", TokenIdent)
}

func TestScanTracksLineAndColumn(t *testing.T) {
	tokens := scan("a\n  b")
	if tokens[0].Line != 1 || tokens[0].Column != 1 {
		t.Fatalf("got %v", tokens[0])
	}
	if tokens[1].Line != 2 || tokens[1].Column != 3 {
		t.Fatalf("got %v", tokens[1])
	}
}
