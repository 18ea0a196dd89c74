package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// ParseSitemap returns the <loc> values of a urlset or sitemapindex document, and whether body was one
func ParseSitemap(body []byte) ([]string, bool) {
	var set XMLURLSet
	if err := xml.Unmarshal(body, &set); err == nil {
		locs := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			locs = append(locs, strings.TrimSpace(u.Loc))
		}
		return locs, true
	}
	var index XMLSitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil {
		locs := make([]string, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			locs = append(locs, strings.TrimSpace(s.Loc))
		}
		return locs, true
	}
	return nil, false
}

// extractXML reads sitemaps through the structs above; any other XML (or a sitemap that fails strict
// parsing) is walked token by token, taking <loc> elements, href attributes and URLs in text.
func extractXML(body []byte, em *emitter) {
	if locs, ok := ParseSitemap(body); ok {
		for _, loc := range locs {
			if !em.emit(loc, models.ContextSitemapLoc) {
				return
			}
		}
		return
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	inLoc := false
	for !em.done() {
		tok, err := dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// malformed tail; fall back to a text scan of the whole body
				em.warn(fmt.Errorf("%w: XML: %w", utils.ErrParsing, err))
				extractText(body, em)
			}
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inLoc = strings.EqualFold(t.Name.Local, "loc")
			for _, a := range t.Attr {
				if strings.EqualFold(a.Name.Local, "href") || strings.EqualFold(a.Name.Local, "src") {
					em.emit(a.Value, models.ContextHTMLAttr)
				}
			}
		case xml.EndElement:
			inLoc = false
		case xml.CharData:
			if inLoc {
				em.emit(string(t), models.ContextSitemapLoc)
			} else {
				scanLoose(string(t), models.ContextText, em)
			}
		case xml.Comment:
			scanLoose(string(t), models.ContextComment, em)
		}
	}
}
