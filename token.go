package hammer

import "fmt"

type TokenKind int

const (
	Token_EOF TokenKind = iota
	Token_Error

	// Literals and names
	Token_Identifier
	Token_Integer
	Token_Float
	Token_StringStart   // opening quote
	Token_StringText    // literal segment inside a string
	Token_StringDollar  // `$ident` or `${` interpolation opener
	Token_StringBlockEnd
	Token_StringEnd // closing quote
	Token_Symbol    // #name

	// Keywords
	Token_KwImport
	Token_KwExport
	Token_KwFunc
	Token_KwVar
	Token_KwConst
	Token_KwAssert
	Token_KwWhile
	Token_KwFor
	Token_KwIn
	Token_KwIf
	Token_KwElse
	Token_KwReturn
	Token_KwBreak
	Token_KwContinue
	Token_KwTrue
	Token_KwFalse
	Token_KwNull
	Token_KwMap
	Token_KwSet

	// Punctuation
	Token_LParen
	Token_RParen
	Token_LBrace
	Token_RBrace
	Token_LBracket
	Token_RBracket
	Token_Comma
	Token_Semicolon
	Token_Colon
	Token_Dot
	Token_Question

	// Operators
	Token_Plus
	Token_Minus
	Token_Star
	Token_StarStar
	Token_Slash
	Token_Percent
	Token_Bang
	Token_Eq
	Token_EqEq
	Token_BangEq
	Token_Lt
	Token_LtEq
	Token_Gt
	Token_GtEq
	Token_AmpAmp
	Token_PipePipe
	Token_PlusEq
	Token_MinusEq
	Token_StarEq
	Token_SlashEq
	Token_PercentEq
)

var tokenNames = map[TokenKind]string{
	Token_EOF:            "end of file",
	Token_Error:          "error",
	Token_Identifier:     "identifier",
	Token_Integer:        "integer literal",
	Token_Float:          "float literal",
	Token_StringStart:    "string literal",
	Token_StringText:     "string text",
	Token_StringDollar:   "interpolation",
	Token_StringBlockEnd: "'}'",
	Token_StringEnd:      "end of string",
	Token_Symbol:         "symbol literal",
	Token_KwImport:       "'import'",
	Token_KwExport:       "'export'",
	Token_KwFunc:         "'func'",
	Token_KwVar:          "'var'",
	Token_KwConst:        "'const'",
	Token_KwAssert:       "'assert'",
	Token_KwWhile:        "'while'",
	Token_KwFor:          "'for'",
	Token_KwIn:           "'in'",
	Token_KwIf:           "'if'",
	Token_KwElse:         "'else'",
	Token_KwReturn:       "'return'",
	Token_KwBreak:        "'break'",
	Token_KwContinue:     "'continue'",
	Token_KwTrue:         "'true'",
	Token_KwFalse:        "'false'",
	Token_KwNull:         "'null'",
	Token_KwMap:          "'map'",
	Token_KwSet:          "'set'",
	Token_LParen:         "'('",
	Token_RParen:         "')'",
	Token_LBrace:         "'{'",
	Token_RBrace:         "'}'",
	Token_LBracket:       "'['",
	Token_RBracket:       "']'",
	Token_Comma:          "','",
	Token_Semicolon:      "';'",
	Token_Colon:          "':'",
	Token_Dot:            "'.'",
	Token_Question:       "'?'",
	Token_Plus:           "'+'",
	Token_Minus:          "'-'",
	Token_Star:           "'*'",
	Token_StarStar:       "'**'",
	Token_Slash:          "'/'",
	Token_Percent:        "'%'",
	Token_Bang:           "'!'",
	Token_Eq:             "'='",
	Token_EqEq:           "'=='",
	Token_BangEq:         "'!='",
	Token_Lt:             "'<'",
	Token_LtEq:           "'<='",
	Token_Gt:             "'>'",
	Token_GtEq:           "'>='",
	Token_AmpAmp:         "'&&'",
	Token_PipePipe:       "'||'",
	Token_PlusEq:         "'+='",
	Token_MinusEq:        "'-='",
	Token_StarEq:         "'*='",
	Token_SlashEq:        "'/='",
	Token_PercentEq:      "'%='",
}

func (k TokenKind) String() string {
	if n, ok := tokenNames[k]; ok {
		return n
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type Token struct {
	Kind TokenKind
	Span Span

	// Text is the raw source slice for identifiers, literals and
	// string segments; punctuation tokens carry their source slice too.
	Text string

	// IntValue/FloatValue carry the decoded payload of number
	// literals.
	IntValue   int64
	FloatValue float64
}

var keywords = map[string]TokenKind{
	"import":   Token_KwImport,
	"export":   Token_KwExport,
	"func":     Token_KwFunc,
	"var":      Token_KwVar,
	"const":    Token_KwConst,
	"assert":   Token_KwAssert,
	"while":    Token_KwWhile,
	"for":      Token_KwFor,
	"in":       Token_KwIn,
	"if":       Token_KwIf,
	"else":     Token_KwElse,
	"return":   Token_KwReturn,
	"break":    Token_KwBreak,
	"continue": Token_KwContinue,
	"true":     Token_KwTrue,
	"false":    Token_KwFalse,
	"null":     Token_KwNull,
	"map":      Token_KwMap,
	"set":      Token_KwSet,
}
