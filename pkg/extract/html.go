package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

type attrRule struct {
	attr string
	ctx  models.ExtractionContext
}

// tagAttrs lists URL-bearing attributes per element, checked in this order for each element
var tagAttrs = map[string][]attrRule{
	"a":          {{"href", models.ContextHTMLLink}, {"ping", models.ContextHTMLAttr}},
	"area":       {{"href", models.ContextHTMLLink}},
	"script":     {{"src", models.ContextScriptSrc}},
	"link":       {{"href", models.ContextHTMLAttr}, {"imagesrcset", models.ContextHTMLAttr}},
	"img":        {{"src", models.ContextHTMLAttr}, {"data-src", models.ContextHTMLAttr}, {"srcset", models.ContextHTMLAttr}, {"data-srcset", models.ContextHTMLAttr}, {"longdesc", models.ContextHTMLAttr}},
	"iframe":     {{"src", models.ContextHTMLAttr}, {"data-src", models.ContextHTMLAttr}},
	"frame":      {{"src", models.ContextHTMLAttr}, {"longdesc", models.ContextHTMLAttr}},
	"embed":      {{"src", models.ContextHTMLAttr}},
	"track":      {{"src", models.ContextHTMLAttr}},
	"audio":      {{"src", models.ContextHTMLAttr}},
	"video":      {{"src", models.ContextHTMLAttr}, {"poster", models.ContextHTMLAttr}},
	"source":     {{"src", models.ContextHTMLAttr}, {"srcset", models.ContextHTMLAttr}},
	"input":      {{"src", models.ContextHTMLAttr}, {"formaction", models.ContextHTMLAttr}},
	"button":     {{"formaction", models.ContextHTMLAttr}},
	"form":       {{"action", models.ContextHTMLAttr}},
	"object":     {{"data", models.ContextHTMLAttr}, {"codebase", models.ContextHTMLAttr}},
	"applet":     {{"code", models.ContextHTMLAttr}, {"codebase", models.ContextHTMLAttr}},
	"base":       {{"href", models.ContextHTMLAttr}},
	"blockquote": {{"cite", models.ContextHTMLAttr}},
	"q":          {{"cite", models.ContextHTMLAttr}},
	"ins":        {{"cite", models.ContextHTMLAttr}},
	"del":        {{"cite", models.ContextHTMLAttr}},
	"body":       {{"background", models.ContextHTMLAttr}},
	"table":      {{"background", models.ContextHTMLAttr}},
	"td":         {{"background", models.ContextHTMLAttr}},
	"use":        {{"href", models.ContextHTMLAttr}},
	"image":      {{"href", models.ContextHTMLAttr}},
}

// anyTagAttrs apply to every element
var anyTagAttrs = []attrRule{
	{"data-href", models.ContextHTMLAttr},
	{"data-url", models.ContextHTMLAttr},
	{"data-link", models.ContextHTMLAttr},
	{"data-background", models.ContextHTMLAttr},
}

var metaContentProps = map[string]bool{
	"og:url": true, "og:image": true, "og:image:url": true, "og:image:secure_url": true, "og:video": true, "og:audio": true,
	"twitter:image": true, "twitter:image:src": true, "twitter:url": true, "msapplication-tileimage": true,
	"msapplication-config": true,
}

var refreshURL = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'"\s;]+)`)

func extractHTML(body []byte, em *emitter) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		em.warn(fmt.Errorf("%w: HTML: %w", utils.ErrParsing, err))
		extractText(body, em)
		return
	}

	if em.base == nil {
		if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
			em.base = resolveBase(href, em.source)
		}
	}

	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		htmlElement(s, em)
		return !em.done()
	})

	for _, n := range doc.Nodes {
		if em.done() {
			return
		}
		walkComments(n, em)
	}
}

func resolveBase(href string, source *url.URL) *url.URL {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil
	}
	if source != nil {
		ref = source.ResolveReference(ref)
	}
	if !ref.IsAbs() || ref.Host == "" {
		return nil
	}
	return ref
}

func htmlElement(s *goquery.Selection, em *emitter) {
	if len(s.Nodes) == 0 {
		return
	}
	node := s.Nodes[0]
	tag := strings.ToLower(node.Data)

	for _, rule := range tagAttrs[tag] {
		if val, ok := s.Attr(rule.attr); ok {
			htmlAttrValue(rule.attr, val, rule.ctx, em)
		}
	}
	for _, rule := range anyTagAttrs {
		if val, ok := s.Attr(rule.attr); ok {
			htmlAttrValue(rule.attr, val, rule.ctx, em)
		}
	}

	for _, a := range node.Attr {
		key := strings.ToLower(a.Key)
		switch {
		case a.Namespace == "xlink" && key == "href":
			em.emit(a.Val, models.ContextHTMLAttr)
		case strings.HasPrefix(key, "on") && len(key) > 2:
			scanTokens(lexJS(a.Val), em)
		case key == "style":
			extractCSS([]byte(a.Val), em)
		}
	}

	switch tag {
	case "meta":
		htmlMeta(s, em)
	case "script":
		if _, hasSrc := s.Attr("src"); !hasSrc || strings.TrimSpace(s.Text()) != "" {
			htmlInlineScript(s, em)
		}
	case "style":
		extractCSS([]byte(s.Text()), em)
	case "noscript", "template", "xmp", "plaintext":
		// scripting-enabled parsing keeps these as raw text
		if text := s.Text(); strings.Contains(text, "<") {
			extractHTML([]byte(text), em)
		}
	}
}

func htmlAttrValue(attr, val string, ctx models.ExtractionContext, em *emitter) {
	val = strings.TrimSpace(val)
	if val == "" {
		return
	}
	if strings.HasSuffix(attr, "srcset") {
		for _, candidate := range splitSrcset(val) {
			if !em.emit(candidate, ctx) {
				return
			}
		}
		return
	}
	if len(val) > 11 && strings.EqualFold(val[:11], "javascript:") {
		scanTokens(lexJS(val[11:]), em)
		return
	}
	em.emit(val, ctx)
}

// splitSrcset returns the URLs of a srcset list ("a.png 1x, b.png 2x")
func splitSrcset(val string) []string {
	var out []string
	for _, candidate := range strings.Split(val, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func htmlMeta(s *goquery.Selection, em *emitter) {
	content, ok := s.Attr("content")
	if !ok || strings.TrimSpace(content) == "" {
		return
	}
	if equiv, _ := s.Attr("http-equiv"); strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
		if m := refreshURL.FindStringSubmatch(content); m != nil {
			em.emit(m[1], models.ContextHTMLAttr)
		}
		return
	}
	prop, _ := s.Attr("property")
	if prop == "" {
		prop, _ = s.Attr("name")
	}
	if prop == "" {
		prop, _ = s.Attr("itemprop")
	}
	if metaContentProps[strings.ToLower(strings.TrimSpace(prop))] {
		em.emit(content, models.ContextHTMLAttr)
	}
}

func htmlInlineScript(s *goquery.Selection, em *emitter) {
	text := s.Text()
	if strings.TrimSpace(text) == "" {
		return
	}
	typ, _ := s.Attr("type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch {
	case typ == "" || typ == "module" || strings.Contains(typ, "javascript") || strings.Contains(typ, "ecmascript") ||
		strings.Contains(typ, "babel") || strings.Contains(typ, "jsx") || strings.Contains(typ, "typescript"):
		extractJS([]byte(text), em)
	case strings.Contains(typ, "json") || typ == "importmap" || typ == "speculationrules":
		extractJSON([]byte(text), em)
	case strings.Contains(typ, "template") || strings.Contains(typ, "html") || strings.Contains(typ, "handlebars"):
		extractHTML([]byte(text), em)
	default:
		scanLoose(text, models.ContextJSStringLiteral, em)
	}
}

func walkComments(n *html.Node, em *emitter) {
	if n.Type == html.CommentNode {
		scanLoose(n.Data, models.ContextComment, em)
		return
	}
	for c := n.FirstChild; c != nil && !em.done(); c = c.NextSibling {
		walkComments(c, em)
	}
}
