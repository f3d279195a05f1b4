package hammer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	lexer := NewLexer([]byte(input))
	var tokens []Token
	for {
		tok := lexer.Next()
		if tok.Kind == Token_EOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

func kinds(tokens []Token) []TokenKind {
	out := make([]TokenKind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}
	return out
}

func TestLexer(t *testing.T) {
	t.Run("keywords and identifiers", func(t *testing.T) {
		tokens := lexAll(t, "func foo(bar) { return bar; }")
		assert.Equal(t, []TokenKind{
			Token_KwFunc, Token_Identifier, Token_LParen, Token_Identifier,
			Token_RParen, Token_LBrace, Token_KwReturn, Token_Identifier,
			Token_Semicolon, Token_RBrace,
		}, kinds(tokens))
	})

	t.Run("numbers", func(t *testing.T) {
		tokens := lexAll(t, "42 3.25")
		require.Len(t, tokens, 2)
		assert.Equal(t, Token_Integer, tokens[0].Kind)
		assert.Equal(t, int64(42), tokens[0].IntValue)
		assert.Equal(t, Token_Float, tokens[1].Kind)
		assert.Equal(t, 3.25, tokens[1].FloatValue)
	})

	t.Run("operators", func(t *testing.T) {
		tokens := lexAll(t, "+ += == != <= ** && ||")
		assert.Equal(t, []TokenKind{
			Token_Plus, Token_PlusEq, Token_EqEq, Token_BangEq,
			Token_LtEq, Token_StarStar, Token_AmpAmp, Token_PipePipe,
		}, kinds(tokens))
	})

	t.Run("comments are trivia", func(t *testing.T) {
		tokens := lexAll(t, "a // comment\nb")
		assert.Equal(t, []TokenKind{Token_Identifier, Token_Identifier}, kinds(tokens))
	})

	t.Run("plain string", func(t *testing.T) {
		tokens := lexAll(t, `"hello"`)
		assert.Equal(t, []TokenKind{Token_StringStart, Token_StringText, Token_StringEnd}, kinds(tokens))
		assert.Equal(t, "hello", tokens[1].Text)
	})

	t.Run("string escapes", func(t *testing.T) {
		tokens := lexAll(t, `"a\nb\"c"`)
		assert.Equal(t, "a\nb\"c", tokens[1].Text)
	})

	t.Run("dollar interpolation", func(t *testing.T) {
		tokens := lexAll(t, `"a${x}b$y"`)
		assert.Equal(t, []TokenKind{
			Token_StringStart, Token_StringText, Token_StringDollar,
			Token_Identifier, Token_StringBlockEnd, Token_StringText,
			Token_StringDollar, Token_Identifier, Token_StringEnd,
		}, kinds(tokens))
	})

	t.Run("nested braces inside interpolation", func(t *testing.T) {
		tokens := lexAll(t, `"${ if (x) { 1 } else { 2 } }"`)
		assert.Equal(t, Token_StringBlockEnd, tokens[len(tokens)-2].Kind)
		assert.Equal(t, Token_StringEnd, tokens[len(tokens)-1].Kind)
	})

	t.Run("symbols", func(t *testing.T) {
		tokens := lexAll(t, "#ok #fail")
		require.Len(t, tokens, 2)
		assert.Equal(t, Token_Symbol, tokens[0].Kind)
		assert.Equal(t, "ok", tokens[0].Text)
		assert.Equal(t, "fail", tokens[1].Text)
	})

	t.Run("spans track lines", func(t *testing.T) {
		tokens := lexAll(t, "a\nbb")
		assert.Equal(t, 1, tokens[0].Span.Start.Line)
		assert.Equal(t, 2, tokens[1].Span.Start.Line)
		assert.Equal(t, 1, tokens[1].Span.Start.Column)
		assert.Equal(t, 2, tokens[1].Span.Start.Offset)
	})
}
