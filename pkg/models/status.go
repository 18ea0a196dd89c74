package models

// ExtractionContext records where in a document a URL reference was found
type ExtractionContext string

const (
	ContextUnset           ExtractionContext = ""
	ContextHTMLLink        ExtractionContext = "html_link"         // <a href>, <area href>
	ContextHTMLAttr        ExtractionContext = "html_attr"         // any other URL-bearing attribute
	ContextScriptSrc       ExtractionContext = "script_src"        // <script src>
	ContextJSStringLiteral ExtractionContext = "js_string_literal" // '...' or "..." in script text
	ContextJSTemplate      ExtractionContext = "js_template"       // `...` in script text
	ContextCSSURL          ExtractionContext = "css_url"           // url(...) and @import
	ContextComment         ExtractionContext = "comment"           // HTML or JS comments
	ContextSeed            ExtractionContext = "seed"              // run seeds
	ContextSitemapLoc      ExtractionContext = "sitemap_loc"       // <loc> in sitemaps
	ContextFeedLink        ExtractionContext = "feed_link"         // RSS/Atom links
	ContextText            ExtractionContext = "text"              // bare URLs in plain text
)

// String implements fmt.Stringer for logging
func (c ExtractionContext) String() string {
	if c == "" {
		return "unset"
	}
	return string(c)
}

// IsValid returns true if the context is a known value
func (c ExtractionContext) IsValid() bool {
	switch c {
	case ContextHTMLLink, ContextHTMLAttr, ContextScriptSrc, ContextJSStringLiteral, ContextJSTemplate,
		ContextCSSURL, ContextComment, ContextSeed, ContextSitemapLoc, ContextFeedLink, ContextText:
		return true
	}
	return false
}

// RunState is the lifecycle state of a crawl run
type RunState string

const (
	RunStateInit      RunState = "init"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateAborted   RunState = "aborted" // caller cancellation only
)

// String implements fmt.Stringer for logging
func (s RunState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsTerminal reports whether the run has finished
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateAborted
}

// FetchErrorKind classifies a failed fetch
type FetchErrorKind string

const (
	FetchErrorTimeout    FetchErrorKind = "timeout"
	FetchErrorConnection FetchErrorKind = "connection"
	FetchErrorHTTPStatus FetchErrorKind = "http_status"
)

// String implements fmt.Stringer for logging
func (k FetchErrorKind) String() string {
	if k == "" {
		return "unset"
	}
	return string(k)
}

// IsValid returns true if the kind is a known value
func (k FetchErrorKind) IsValid() bool {
	switch k {
	case FetchErrorTimeout, FetchErrorConnection, FetchErrorHTTPStatus:
		return true
	}
	return false
}

// EntryKind tags the variant held by a ResultEntry
type EntryKind string

const (
	EntryDiscovered EntryKind = "discovered"
	EntryPage       EntryKind = "page"
	EntryFailure    EntryKind = "failure"
	EntryBlocked    EntryKind = "blocked" // disallowed by robots.txt
)
