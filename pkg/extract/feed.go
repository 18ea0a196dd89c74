package extract

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed"

	"url-spider/pkg/models"
	"url-spider/pkg/utils"
)

// extractFeed parses RSS, Atom and JSON feeds; unparseable feeds fall back to the XML walk
func extractFeed(body []byte, em *emitter) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		em.warn(fmt.Errorf("%w: feed: %w", utils.ErrParsing, err))
		extractXML(body, em)
		return
	}

	for _, link := range feedLinks(feed) {
		if !em.emit(link, models.ContextFeedLink) {
			return
		}
	}
}

// feedLinks lists the feed's own links followed by each item's links and enclosures, in feed order
func feedLinks(feed *gofeed.Feed) []string {
	var out []string
	out = append(out, feed.Link, feed.FeedLink)
	out = append(out, feed.Links...)
	if feed.Image != nil {
		out = append(out, feed.Image.URL)
	}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		out = append(out, item.Link)
		out = append(out, item.Links...)
		if item.Image != nil {
			out = append(out, item.Image.URL)
		}
		for _, enc := range item.Enclosures {
			if enc != nil {
				out = append(out, enc.URL)
			}
		}
	}
	return out
}
