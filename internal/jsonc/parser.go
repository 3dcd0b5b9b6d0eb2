package jsonc

// parser validates the token stream produced by the scanner. It recovers
// from errors so a single pass reports every problem in the document.
type parser struct {
	scan *scanner
	tok  token
}

// advance moves to the next token.
func (p *parser) advance() {
	p.tok = p.scan.next()
}

// errorAtToken records a syntax error at the current token.
func (p *parser) errorAtToken(code ErrorCode) {
	p.scan.errorAt(p.tok.offset, p.tok.length, code)
}

// parseValue validates a single value. On error it records the problem
// and consumes the offending token unless it is a closing token or EOF,
// which the enclosing composite handles.
func (p *parser) parseValue() {
	switch p.tok.kind {
	case tokenString, tokenNumber, tokenTrue, tokenFalse, tokenNull:
		p.advance()
	case tokenOpenBrace:
		p.parseObject()
	case tokenOpenBracket:
		p.parseArray()
	default:
		p.errorAtToken(CodeValueExpected)
		switch p.tok.kind {
		case tokenEOF, tokenCloseBrace, tokenCloseBracket:
		default:
			p.advance()
		}
	}
}

// parseObject validates an object. The opening brace is the current token.
func (p *parser) parseObject() {
	open := p.tok
	p.advance()

	last := -1
	for {
		// Guard against stalls during error recovery.
		if p.tok.offset == last && p.tok.kind != tokenEOF {
			p.advance()
		}
		last = p.tok.offset

		if p.tok.kind == tokenCloseBrace {
			p.advance()
			return
		}
		if p.tok.kind == tokenEOF {
			p.scan.errorAt(open.offset, open.length, CodeCloseBraceExpected)
			return
		}

		if p.tok.kind == tokenString {
			p.advance()
		} else {
			p.errorAtToken(CodePropertyNameExpected)
			if !isValueStart(p.tok.kind) && p.tok.kind != tokenColon {
				p.advance()
				continue
			}
		}

		if p.tok.kind == tokenColon {
			p.advance()
		} else {
			p.errorAtToken(CodeColonExpected)
		}

		p.parseValue()

		if p.tok.kind == tokenComma {
			// Trailing commas before the closing brace are tolerated.
			p.advance()
			continue
		}
		if p.tok.kind == tokenCloseBrace || p.tok.kind == tokenEOF {
			continue
		}
		p.errorAtToken(CodeCommaExpected)
	}
}

// parseArray validates an array. The opening bracket is the current token.
func (p *parser) parseArray() {
	open := p.tok
	p.advance()

	last := -1
	for {
		if p.tok.offset == last && p.tok.kind != tokenEOF {
			p.advance()
		}
		last = p.tok.offset

		if p.tok.kind == tokenCloseBracket {
			p.advance()
			return
		}
		if p.tok.kind == tokenEOF {
			p.scan.errorAt(open.offset, open.length, CodeCloseBracketExpected)
			return
		}

		p.parseValue()

		if p.tok.kind == tokenComma {
			// Trailing commas before the closing bracket are tolerated.
			p.advance()
			continue
		}
		if p.tok.kind == tokenCloseBracket || p.tok.kind == tokenEOF {
			continue
		}
		p.errorAtToken(CodeCommaExpected)
	}
}

// isValueStart reports whether a token can begin a value.
func isValueStart(k tokenKind) bool {
	switch k {
	case tokenString, tokenNumber, tokenTrue, tokenFalse, tokenNull,
		tokenOpenBrace, tokenOpenBracket:
		return true
	default:
		return false
	}
}
