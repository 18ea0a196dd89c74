package extract

import (
	"strings"

	"url-spider/pkg/models"
)

// urlCallees take a URL as their first argument: fetch(u), axios.get(u), $.ajax(u), new WebSocket(u) ...
var urlCallees = map[string]bool{
	"fetch": true, "open": true, "import": true, "require": true, "importScripts": true,
	"WebSocket": true, "EventSource": true, "Worker": true, "SharedWorker": true, "register": true, "sendBeacon": true,
	"ajax": true, "get": true, "post": true, "put": true, "patch": true, "delete": true, "head": true, "getJSON": true,
	"axios": true, "request": true, "load": true, "assign": true, "replace": true, "URL": true, "Request": true,
	"__webpack_require__": true, "redirect": true, "navigate": true, "pushState": true, "replaceState": true,
}

// urlKeys are property or variable names whose string values are treated as URLs
var urlKeys = map[string]bool{
	"url": true, "uri": true, "href": true, "src": true, "endpoint": true, "api": true, "path": true,
	"action": true, "baseurl": true, "location": true, "link": true, "redirect": true, "redirect_uri": true,
	"callback": true, "target": true, "route": true, "template": true, "templateurl": true,
}

var urlKeySuffixes = []string{"url", "uri", "href", "src", "endpoint", "path"}

func isURLKey(name string) bool {
	lower := strings.ToLower(name)
	if urlKeys[lower] {
		return true
	}
	for _, suffix := range urlKeySuffixes {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func extractJS(body []byte, em *emitter) {
	scanTokens(lexJS(string(body)), em)
}

// extractJSON runs the script scanner over JSON; "key": "value" pairs hit the url-key rule
func extractJSON(body []byte, em *emitter) {
	scanTokens(lexJS(string(body)), em)
}

// scanTokens walks the token stream emitting URL-shaped literals
func scanTokens(toks []token, em *emitter) {
	for i := 0; i < len(toks) && !em.done(); i++ {
		tok := toks[i]
		switch tok.kind {
		case tokComment:
			scanLoose(tok.text, models.ContextComment, em)
		case tokString:
			relaxed := expectsURL(toks, i)
			if joined, next, ok := concatChain(toks, i); ok {
				if looksLikeURL(joined) || (relaxed && looksLikeURLRelaxed(joined)) {
					em.emit(joined, models.ContextJSStringLiteral)
				}
				emitString(toks, i, relaxed, em)
				i = next - 1
				continue
			}
			emitString(toks, i, relaxed, em)
		case tokTemplate:
			relaxed := expectsURL(toks, i)
			emitTemplate(tok, relaxed, em)
			if len(tok.inner) > 0 {
				scanTokens(tok.inner, em)
			}
		}
	}
}

func emitString(toks []token, i int, relaxed bool, em *emitter) {
	s := toks[i].text
	if looksLikeURL(s) || (relaxed && looksLikeURLRelaxed(s)) {
		em.emit(s, models.ContextJSStringLiteral)
	}
}

func emitTemplate(tok token, relaxed bool, em *emitter) {
	if !tok.hasSubst {
		if looksLikeURL(tok.text) || (relaxed && looksLikeURLRelaxed(tok.text)) {
			em.emit(tok.text, models.ContextJSTemplate)
		}
		return
	}
	// `${base}/api/users` has no usable prefix; `/api/${id}` yields /api/
	prefix := tok.prefix
	if prefix == "" || !(looksLikeURL(prefix) || (relaxed && looksLikeURLRelaxed(prefix))) {
		return
	}
	em.emit(prefix, models.ContextJSTemplate)
}

// concatChain joins "a" + "b" + `c` starting at toks[i]. It returns the joined text and the index
// after the last operand; ok is false when toks[i] is not the head of a chain of two or more literals.
func concatChain(toks []token, i int) (string, int, bool) {
	if prev, ok := prevSignificant(toks, i); ok && prev.kind == tokPunct && prev.text == "+" {
		return "", i, false // not the head
	}
	var b strings.Builder
	b.WriteString(toks[i].text)
	n := 1
	j := i + 1
	for {
		plus := nextSignificant(toks, j)
		if plus < 0 || toks[plus].kind != tokPunct || toks[plus].text != "+" {
			break
		}
		operand := nextSignificant(toks, plus+1)
		if operand < 0 {
			break
		}
		op := toks[operand]
		if op.kind == tokString || (op.kind == tokTemplate && !op.hasSubst) {
			b.WriteString(op.text)
		} else {
			break
		}
		n++
		j = operand + 1
	}
	if n < 2 {
		return "", i, false
	}
	return b.String(), j, true
}

// expectsURL reports whether toks[i] sits where a URL is expected: first argument of a URL-taking call,
// value of a URL-ish key or assignment, or the module specifier of import/export.
func expectsURL(toks []token, i int) bool {
	p1, ok := prevSignificantIndex(toks, i)
	if !ok {
		return false
	}
	prev := toks[p1]
	switch {
	case prev.kind == tokIdent && (prev.text == "from" || prev.text == "import"):
		return true
	case prev.kind == tokPunct && prev.text == "(":
		p2, ok := prevSignificantIndex(toks, p1)
		if !ok || toks[p2].kind != tokIdent {
			return false
		}
		return urlCallees[toks[p2].text]
	case prev.kind == tokPunct && (prev.text == ":" || prev.text == "="):
		p2, ok := prevSignificantIndex(toks, p1)
		if !ok {
			return false
		}
		key := toks[p2]
		if key.kind != tokIdent && key.kind != tokString {
			return false // "==", "=>", ternaries on expressions
		}
		return isURLKey(key.text)
	}
	return false
}

func prevSignificantIndex(toks []token, i int) (int, bool) {
	for j := i - 1; j >= 0; j-- {
		if toks[j].kind != tokComment {
			return j, true
		}
	}
	return -1, false
}

func prevSignificant(toks []token, i int) (token, bool) {
	j, ok := prevSignificantIndex(toks, i)
	if !ok {
		return token{}, false
	}
	return toks[j], true
}

func nextSignificant(toks []token, j int) int {
	for ; j < len(toks); j++ {
		if toks[j].kind != tokComment {
			return j
		}
	}
	return -1
}
