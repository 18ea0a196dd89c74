package extract

import "url-spider/pkg/models"

// extractText finds bare absolute URLs in plain text
func extractText(body []byte, em *emitter) {
	for _, m := range absoluteURLs.FindAllString(string(body), -1) {
		if !em.emit(trimURLTail(m), models.ContextText) {
			return
		}
	}
}
