package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Sentinel errors, matched with errors.Is by CategorizeError.
var (
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx/3xx)")   // Wraps original error/status
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
	ErrScopeViolation   = errors.New("URL rejected by crawl policy")
	ErrMaxDepthExceeded = errors.New("maximum crawl depth exceeded")
	ErrNormalization    = errors.New("URL normalization failed") // Unparseable or unsupported scheme/host
	ErrParsing          = errors.New("parsing error")            // Wraps specific parsing error (HTML, URL, XML, feed)
	ErrFilesystem       = errors.New("filesystem error")         // Wraps os errors
	ErrDatabase         = errors.New("database error")           // Wraps badger/sqlite errors
	ErrSemaphoreTimeout = errors.New("timeout acquiring semaphore")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrConfigValidation = errors.New("configuration validation error")
	ErrNoSeeds          = errors.New("no valid seed URLs")
)

// WrapErrorf annotates err with a formatted message while keeping it matchable with errors.Is.
// Returns nil when err is nil.
func WrapErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// sentinelCategories lists the sentinels whose category needs no further inspection.
var sentinelCategories = []struct {
	err      error
	category string
}{
	{ErrServerHTTPError, "HTTP_5xx"},
	{ErrOtherHTTPError, "HTTP_OtherStatus"},
	{ErrRobotsDisallowed, "Policy_Robots"},
	{ErrScopeViolation, "Policy_Scope"},
	{ErrMaxDepthExceeded, "Policy_MaxDepth"},
	{ErrNormalization, "URL_Normalization"},
	{ErrDatabase, "Database_Other"},
	{ErrSemaphoreTimeout, "Resource_SemaphoreTimeout"},
	{ErrRequestCreation, "Internal_RequestCreation"},
	{ErrResponseBodyRead, "Network_BodyRead"},
	{ErrConfigValidation, "Config_Validation"},
	{ErrNoSeeds, "Config_NoSeeds"},
}

// networkHints maps lowercase message fragments to the suffix of a network category.
var networkHints = []struct {
	fragment string
	suffix   string
}{
	{"timeout", "TimeoutGeneric"},
	{"deadline exceeded", "TimeoutGeneric"},
	{"connection refused", "ConnectionRefused"},
	{"no such host", "DNSLookup"},
	{"tls", "TLS"},
	{"certificate", "TLS"},
	{"reset by peer", "ConnectionReset"},
	{"broken pipe", "BrokenPipe"},
}

// CategorizeError maps an error to the stable category string recorded in failure entries and logs.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		return categorizeRetry(err)
	case errors.Is(err, ErrClientHTTPError):
		return categorizeClientStatus(err.Error())
	case errors.Is(err, ErrParsing):
		return categorizeParsing(err.Error())
	case errors.Is(err, ErrFilesystem):
		return categorizeFilesystem(err)
	}
	for _, sc := range sentinelCategories {
		if errors.Is(err, sc.err) {
			return sc.category
		}
	}

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if strings.Contains(err.Error(), "semaphore") {
			return "Resource_SemaphoreTimeout"
		}
		return "System_ContextDeadlineExceeded"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	if suffix, ok := matchNetworkHint(err.Error()); ok {
		return "Network_" + suffix
	}
	if strings.Contains(strings.ToLower(err.Error()), "panic") {
		return "Internal_Panic"
	}
	return "Unknown"
}

// categorizeRetry looks at the last attempt's error, which sits next to ErrRetryFailed in the chain.
func categorizeRetry(err error) string {
	switch {
	case errors.Is(err, ErrServerHTTPError):
		return "RetryFailed_HTTPServer"
	case errors.Is(err, ErrClientHTTPError):
		return "RetryFailed_HTTPClient"
	}
	msg := strings.TrimPrefix(err.Error(), ErrRetryFailed.Error())
	msg = strings.TrimLeft(msg, ": ")
	if msg == "" {
		return "RetryFailed_Unknown"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "RetryFailed_NetworkTimeout"
	}
	if suffix, ok := matchNetworkHint(msg); ok {
		switch suffix {
		case "TimeoutGeneric":
			return "RetryFailed_NetworkTimeout"
		case "ConnectionRefused", "DNSLookup":
			return "RetryFailed_" + suffix
		}
	}
	return "RetryFailed_NetworkOther"
}

func categorizeClientStatus(msg string) string {
	for _, code := range []string{"404", "403", "401", "410", "429"} {
		if strings.Contains(msg, " "+code+" ") || strings.HasSuffix(msg, " "+code) {
			return "HTTP_" + code
		}
	}
	return "HTTP_4xx"
}

func categorizeParsing(msg string) string {
	for _, kind := range []string{"URL", "HTML", "XML"} {
		if strings.Contains(msg, kind) {
			return "Content_Parsing" + kind
		}
	}
	if strings.Contains(msg, "feed") {
		return "Content_ParsingFeed"
	}
	return "Content_ParsingOther"
}

func categorizeFilesystem(err error) string {
	switch {
	case errors.Is(err, os.ErrPermission):
		return "Filesystem_Permission"
	case errors.Is(err, os.ErrNotExist):
		return "Filesystem_NotExist"
	case errors.Is(err, os.ErrExist):
		return "Filesystem_Exist"
	}
	return "Filesystem_Other"
}

func matchNetworkHint(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, h := range networkHints {
		if strings.Contains(lower, h.fragment) {
			return h.suffix, true
		}
	}
	return "", false
}
