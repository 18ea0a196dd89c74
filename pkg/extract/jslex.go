package extract

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

type tokenKind int

const (
	tokString tokenKind = iota
	tokTemplate
	tokIdent
	tokNumber
	tokPunct
	tokRegex
	tokComment
)

// token is one lexical unit of script text; for strings and templates text holds the decoded value
type token struct {
	kind tokenKind
	text string
	// templates only: the text before the first ${ and whether any substitution occurred
	prefix   string
	hasSubst bool
	// templates only: tokens lexed from the ${...} expressions
	inner []token
}

// keywords after which a slash starts a regular expression rather than a division
var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true, "in": true, "of": true,
	"new": true, "delete": true, "void": true, "throw": true, "yield": true, "await": true, "instanceof": true,
}

// lexJS tokenizes script text with the tdewolff lexer. It never fails: when the lexer rejects a
// construct, lexing resumes right after it. An unterminated quoted string ends at its line end.
func lexJS(src string) []token {
	s := &jsScanner{}
	for pos := 0; pos < len(src); {
		pos = s.lexFrom(src, pos)
	}
	s.closeTemplates()
	return s.toks
}

// templateFrame collects a template literal while the expressions of its substitutions are lexed
type templateFrame struct {
	tok  token
	text strings.Builder
}

type jsScanner struct {
	toks   []token
	frames []*templateFrame
}

// lexFrom lexes src[start:] and returns where lexing resumes: len(src) at the end of input, or the
// position after the construct the lexer rejected.
func (s *jsScanner) lexFrom(src string, start int) int {
	l := js.NewLexer(parse.NewInputString(src[start:]))
	pos := start
	for {
		tt, data := l.Next()
		switch tt {
		case js.ErrorToken:
			if errors.Is(l.Err(), io.EOF) {
				return len(src)
			}
			return s.resync(src, pos)
		case js.DivToken, js.DivEqToken:
			if s.regexAllowed() {
				rt, re := l.RegExp()
				if rt != js.RegExpToken {
					// no closing slash on this line
					s.emit(token{kind: tokPunct, text: "/"})
					return pos + 1
				}
				s.emit(token{kind: tokRegex, text: string(re)})
				pos += len(re)
				continue
			}
			s.emit(token{kind: tokPunct, text: string(data)})
		default:
			s.handle(tt, string(data))
		}
		pos += len(data)
	}
}

func (s *jsScanner) handle(tt js.TokenType, data string) {
	switch {
	case tt == js.WhitespaceToken || tt == js.LineTerminatorToken:
	case tt == js.CommentToken || tt == js.CommentLineTerminatorToken:
		s.emit(token{kind: tokComment, text: data})
	case tt == js.StringToken:
		s.emit(token{kind: tokString, text: decodeEscapes(trimDelims(data, 1, 1))})
	case tt == js.TemplateToken:
		text := decodeEscapes(trimDelims(data, 1, 1))
		s.emit(token{kind: tokTemplate, text: text, prefix: text})
	case tt == js.TemplateStartToken:
		f := &templateFrame{tok: token{kind: tokTemplate, hasSubst: true}}
		f.tok.prefix = decodeEscapes(trimDelims(data, 1, 2))
		f.text.WriteString(f.tok.prefix)
		s.frames = append(s.frames, f)
	case tt == js.TemplateMiddleToken || tt == js.TemplateEndToken:
		if len(s.frames) == 0 {
			s.emit(token{kind: tokPunct, text: data})
			return
		}
		f := s.frames[len(s.frames)-1]
		f.text.WriteString("${}")
		if tt == js.TemplateMiddleToken {
			f.text.WriteString(decodeEscapes(trimDelims(data, 1, 2)))
			return
		}
		f.text.WriteString(decodeEscapes(trimDelims(data, 1, 1)))
		s.popTemplate()
	case js.IsNumeric(tt):
		s.emit(token{kind: tokNumber, text: data})
	case js.IsIdentifierName(tt) || tt == js.PrivateIdentifierToken:
		s.emit(token{kind: tokIdent, text: data})
	default:
		s.emit(token{kind: tokPunct, text: data})
	}
}

// emit appends to the innermost open template's expression tokens, or to the top level
func (s *jsScanner) emit(tok token) {
	if n := len(s.frames); n > 0 {
		s.frames[n-1].tok.inner = append(s.frames[n-1].tok.inner, tok)
		return
	}
	s.toks = append(s.toks, tok)
}

func (s *jsScanner) popTemplate() {
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	f.tok.text = f.text.String()
	s.emit(f.tok)
}

// closeTemplates finishes templates left open by the end of input or a lexer restart
func (s *jsScanner) closeTemplates() {
	for len(s.frames) > 0 {
		s.popTemplate()
	}
}

// resync recovers from a lexer error at pos. A fresh lexer knows nothing of open templates, so
// those are closed first.
func (s *jsScanner) resync(src string, pos int) int {
	s.closeTemplates()
	if pos >= len(src) {
		return len(src)
	}
	switch c := src[pos]; c {
	case '\'', '"':
		stop := len(src)
		if nl := strings.IndexByte(src[pos+1:], '\n'); nl >= 0 {
			stop = pos + 1 + nl
		}
		s.emit(token{kind: tokString, text: decodeEscapes(src[pos+1 : stop])})
		return stop
	case '`':
		text := decodeEscapes(src[pos+1:])
		s.emit(token{kind: tokTemplate, text: text, prefix: text})
		return len(src)
	}
	_, size := utf8.DecodeRuneInString(src[pos:])
	s.emit(token{kind: tokPunct, text: src[pos : pos+size]})
	return pos + size
}

// regexAllowed decides from the previous significant token whether a slash opens a regex literal
func (s *jsScanner) regexAllowed() bool {
	toks := s.toks
	if n := len(s.frames); n > 0 {
		toks = s.frames[n-1].tok.inner
	}
	prev, ok := prevSignificant(toks, len(toks))
	if !ok {
		return true
	}
	switch prev.kind {
	case tokIdent:
		return regexKeywords[prev.text]
	case tokNumber, tokString, tokTemplate, tokRegex:
		return false
	case tokPunct:
		return prev.text != ")" && prev.text != "]" && prev.text != "}"
	}
	return true
}

func trimDelims(data string, left, right int) string {
	if len(data) < left+right {
		return ""
	}
	return data[left : len(data)-right]
}

// decodeEscapes resolves backslash sequences of a string or template body
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch c := s[i]; c {
		case 'n', 'r', 't', 'b', 'f', 'v':
			b.WriteByte(' ') // whitespace makes the value fail URL shape tests, which is what we want
			i++
		case 'x':
			if r, ok := hexRune(s, i+1, 2); ok {
				b.WriteRune(r)
				i += 3
				continue
			}
			b.WriteByte(c)
			i++
		case 'u':
			if i+1 < len(s) && s[i+1] == '{' {
				if end := strings.IndexByte(s[i:], '}'); end > 2 {
					if r, ok := hexRune(s, i+2, end-2); ok {
						b.WriteRune(r)
						i += end + 1
						continue
					}
				}
			} else if r, ok := hexRune(s, i+1, 4); ok {
				b.WriteRune(r)
				i += 5
				continue
			}
			b.WriteByte(c)
			i++
		case '\r':
			i++ // line continuation
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case '\n':
			i++
		default:
			_, size := utf8.DecodeRuneInString(s[i:])
			b.WriteString(s[i : i+size])
			i += size
		}
	}
	return b.String()
}

func hexRune(s string, start, n int) (rune, bool) {
	if n <= 0 || n > 6 || start+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[start:start+n], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, false
	}
	return rune(v), true
}
