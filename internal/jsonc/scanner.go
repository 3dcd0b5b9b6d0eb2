package jsonc

// tokenKind identifies the kind of a scanned token.
type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenOpenBrace
	tokenCloseBrace
	tokenOpenBracket
	tokenCloseBracket
	tokenColon
	tokenComma
	tokenString
	tokenNumber
	tokenTrue
	tokenFalse
	tokenNull
	tokenUnknown
)

// token is a single lexical token with its source span.
type token struct {
	kind   tokenKind
	offset int
	length int
}

// scanner tokenizes JSON-with-comments source, recording lexical errors
// as it goes instead of stopping.
type scanner struct {
	src  string
	pos  int
	errs []*SyntaxError
}

// errorAt records a syntax error for the given span.
func (s *scanner) errorAt(offset, length int, code ErrorCode) {
	s.errs = append(s.errs, &SyntaxError{Offset: offset, Length: length, Code: code})
}

// next returns the next token, skipping whitespace and comments.
// At end of input it returns tokenEOF repeatedly.
func (s *scanner) next() token {
	s.skipTrivia()

	start := s.pos
	if s.pos >= len(s.src) {
		return token{kind: tokenEOF, offset: start}
	}

	switch c := s.src[s.pos]; c {
	case '{':
		s.pos++
		return token{kind: tokenOpenBrace, offset: start, length: 1}
	case '}':
		s.pos++
		return token{kind: tokenCloseBrace, offset: start, length: 1}
	case '[':
		s.pos++
		return token{kind: tokenOpenBracket, offset: start, length: 1}
	case ']':
		s.pos++
		return token{kind: tokenCloseBracket, offset: start, length: 1}
	case ':':
		s.pos++
		return token{kind: tokenColon, offset: start, length: 1}
	case ',':
		s.pos++
		return token{kind: tokenComma, offset: start, length: 1}
	case '"':
		return s.scanString()
	default:
		if c == '-' || (c >= '0' && c <= '9') {
			return s.scanNumber()
		}
		if isIdentStart(c) {
			return s.scanKeyword()
		}
		s.pos++
		s.errorAt(start, 1, CodeInvalidCharacter)
		return token{kind: tokenUnknown, offset: start, length: 1}
	}
}

// skipTrivia skips whitespace and comments, recording an error for an
// unterminated block comment.
func (s *scanner) skipTrivia() {
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; c {
		case ' ', '\t', '\r', '\n':
			s.pos++
		case '/':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == '/' {
				for s.pos < len(s.src) && s.src[s.pos] != '\n' {
					s.pos++
				}
				continue
			}
			if s.pos+1 < len(s.src) && s.src[s.pos+1] == '*' {
				start := s.pos
				s.pos += 2
				for {
					if s.pos+1 >= len(s.src) {
						s.errorAt(start, len(s.src)-start, CodeUnterminatedComment)
						s.pos = len(s.src)
						break
					}
					if s.src[s.pos] == '*' && s.src[s.pos+1] == '/' {
						s.pos += 2
						break
					}
					s.pos++
				}
				continue
			}
			return
		default:
			return
		}
	}
}

// scanString scans a string literal starting at the opening quote.
func (s *scanner) scanString() token {
	start := s.pos
	s.pos++ // opening quote

	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; c {
		case '"':
			s.pos++
			return token{kind: tokenString, offset: start, length: s.pos - start}
		case '\\':
			s.scanEscape()
		case '\n':
			s.errorAt(start, s.pos-start, CodeUnterminatedString)
			return token{kind: tokenString, offset: start, length: s.pos - start}
		default:
			s.pos++
		}
	}

	s.errorAt(start, s.pos-start, CodeUnterminatedString)
	return token{kind: tokenString, offset: start, length: s.pos - start}
}

// scanEscape consumes one escape sequence inside a string.
func (s *scanner) scanEscape() {
	start := s.pos
	s.pos++ // backslash
	if s.pos >= len(s.src) {
		s.errorAt(start, 1, CodeInvalidEscape)
		return
	}

	switch s.src[s.pos] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		s.pos++
	case 'u':
		s.pos++
		for i := 0; i < 4; i++ {
			if s.pos >= len(s.src) || !isHexDigit(s.src[s.pos]) {
				s.errorAt(start, s.pos-start, CodeInvalidEscape)
				return
			}
			s.pos++
		}
	default:
		s.errorAt(start, 2, CodeInvalidEscape)
		s.pos++
	}
}

// scanNumber scans a number literal, validating the JSON number grammar.
func (s *scanner) scanNumber() token {
	start := s.pos
	valid := true

	if s.src[s.pos] == '-' {
		s.pos++
	}

	// Integer part
	if s.pos < len(s.src) && s.src[s.pos] == '0' {
		s.pos++
	} else if s.pos < len(s.src) && isDigit(s.src[s.pos]) {
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	} else {
		valid = false
	}

	// Fraction
	if s.pos < len(s.src) && s.src[s.pos] == '.' {
		s.pos++
		if s.pos >= len(s.src) || !isDigit(s.src[s.pos]) {
			valid = false
		}
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	}

	// Exponent
	if s.pos < len(s.src) && (s.src[s.pos] == 'e' || s.src[s.pos] == 'E') {
		s.pos++
		if s.pos < len(s.src) && (s.src[s.pos] == '+' || s.src[s.pos] == '-') {
			s.pos++
		}
		if s.pos >= len(s.src) || !isDigit(s.src[s.pos]) {
			valid = false
		}
		for s.pos < len(s.src) && isDigit(s.src[s.pos]) {
			s.pos++
		}
	}

	length := s.pos - start
	if !valid {
		s.errorAt(start, length, CodeInvalidNumber)
	}
	return token{kind: tokenNumber, offset: start, length: length}
}

// scanKeyword scans an identifier run and matches it against the JSON
// keywords true, false, and null.
func (s *scanner) scanKeyword() token {
	start := s.pos
	for s.pos < len(s.src) && isIdentPart(s.src[s.pos]) {
		s.pos++
	}

	length := s.pos - start
	switch s.src[start:s.pos] {
	case "true":
		return token{kind: tokenTrue, offset: start, length: length}
	case "false":
		return token{kind: tokenFalse, offset: start, length: length}
	case "null":
		return token{kind: tokenNull, offset: start, length: length}
	default:
		s.errorAt(start, length, CodeInvalidCharacter)
		return token{kind: tokenUnknown, offset: start, length: length}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
