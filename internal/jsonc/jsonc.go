// Package jsonc provides tolerant handling of JSON-with-comments documents.
//
// The package supports the comment conventions used by tasks.json files:
// line comments (//), block comments (/* */), and trailing commas before
// a closing bracket or brace. Strip rewrites a document into plain JSON
// while preserving byte offsets, and Check validates a document collecting
// every syntax error instead of stopping at the first one.
package jsonc

import "fmt"

// ErrorCode categorizes a syntax error.
type ErrorCode int

const (
	// CodeInvalidCharacter indicates a character that cannot start a token.
	CodeInvalidCharacter ErrorCode = iota
	// CodeUnterminatedString indicates a string missing its closing quote.
	CodeUnterminatedString
	// CodeUnterminatedComment indicates a block comment missing its terminator.
	CodeUnterminatedComment
	// CodeInvalidEscape indicates an invalid escape sequence in a string.
	CodeInvalidEscape
	// CodeInvalidNumber indicates a malformed number literal.
	CodeInvalidNumber
	// CodeValueExpected indicates a value was expected.
	CodeValueExpected
	// CodePropertyNameExpected indicates an object key was expected.
	CodePropertyNameExpected
	// CodeColonExpected indicates a colon was expected after an object key.
	CodeColonExpected
	// CodeCommaExpected indicates a comma was expected between elements.
	CodeCommaExpected
	// CodeCloseBraceExpected indicates an object was not closed.
	CodeCloseBraceExpected
	// CodeCloseBracketExpected indicates an array was not closed.
	CodeCloseBracketExpected
	// CodeTrailingContent indicates content after the top-level value.
	CodeTrailingContent
)

// String returns a human-readable description of the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeInvalidCharacter:
		return "invalid character"
	case CodeUnterminatedString:
		return "unterminated string"
	case CodeUnterminatedComment:
		return "unterminated block comment"
	case CodeInvalidEscape:
		return "invalid escape sequence"
	case CodeInvalidNumber:
		return "invalid number"
	case CodeValueExpected:
		return "value expected"
	case CodePropertyNameExpected:
		return "property name expected"
	case CodeColonExpected:
		return "colon expected"
	case CodeCommaExpected:
		return "comma expected"
	case CodeCloseBraceExpected:
		return "closing brace expected"
	case CodeCloseBracketExpected:
		return "closing bracket expected"
	case CodeTrailingContent:
		return "unexpected content after document"
	default:
		return "unknown error"
	}
}

// SyntaxError describes a single syntax problem in a document.
type SyntaxError struct {
	// Offset is the byte offset where the error starts.
	Offset int
	// Length is the byte length of the offending region.
	Length int
	// Code categorizes the error.
	Code ErrorCode
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d (length %d)", e.Code, e.Offset, e.Length)
}

// Check validates src as JSON-with-comments and returns every syntax error
// found. A nil return means the document is valid. Trailing commas before
// a closing bracket or brace are tolerated and not reported.
func Check(src string) []*SyntaxError {
	p := &parser{scan: &scanner{src: src}}
	p.advance()
	if p.tok.kind == tokenEOF {
		p.errorAtToken(CodeValueExpected)
		return p.scan.errs
	}
	p.parseValue()
	if p.tok.kind != tokenEOF {
		p.errorAtToken(CodeTrailingContent)
	}
	return p.scan.errs
}

// Strip rewrites src into plain JSON by overwriting comments and trailing
// commas with spaces. Newlines inside comments are kept so byte offsets
// and line numbers in the result match the original document.
func Strip(src string) string {
	out := []byte(src)
	pendingComma := -1

	i := 0
	for i < len(out) {
		switch c := out[i]; c {
		case '"':
			pendingComma = -1
			i = skipString(out, i)
		case '/':
			if i+1 < len(out) && out[i+1] == '/' {
				for i < len(out) && out[i] != '\n' {
					out[i] = ' '
					i++
				}
			} else if i+1 < len(out) && out[i+1] == '*' {
				out[i] = ' '
				out[i+1] = ' '
				i += 2
				for i < len(out) {
					if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
						out[i] = ' '
						out[i+1] = ' '
						i += 2
						break
					}
					if out[i] != '\n' && out[i] != '\r' {
						out[i] = ' '
					}
					i++
				}
			} else {
				pendingComma = -1
				i++
			}
		case ',':
			pendingComma = i
			i++
		case ']', '}':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
			i++
		case ' ', '\t', '\r', '\n':
			i++
		default:
			pendingComma = -1
			i++
		}
	}

	return string(out)
}

// skipString advances past a string literal starting at the opening quote.
// Returns the index just past the closing quote, or len(b) if unterminated.
func skipString(b []byte, start int) int {
	i := start + 1
	for i < len(b) {
		switch b[i] {
		case '\\':
			i += 2
		case '"':
			return i + 1
		case '\n':
			// Unterminated; Check reports it.
			return i
		default:
			i++
		}
	}
	return i
}
