package proxy

import (
	"regexp"
	"strings"
)

// APIEndpoints are the REST endpoint suffixes a configured base URL may already carry.
// Order matters: the first suffix match wins.
var APIEndpoints = []string{
	"/v1/chat/completions",
	"/v1/completions",
	"/v1/embeddings",
	"/v1/images/generations",
	"/v1/audio/speech",
	"/v1/audio/transcriptions",
	"/v1/models",
	"/chat/completions",
}

// BuildFetchURLOptions describes one upstream URL computation.
type BuildFetchURLOptions struct {
	BaseURL           string
	RequestPath       string
	QueryString       string
	UseGatewayRewrite bool
}

// NormalizeBaseURL ensures a scheme and strips one trailing slash.
func NormalizeBaseURL(u string) string {
	if !strings.HasPrefix(u, "http") {
		u = "https://" + u
	}
	return strings.TrimSuffix(u, "/")
}

// DetectBaseURLEndpoint returns the known endpoint suffix baseURL ends with, or "".
func DetectBaseURLEndpoint(baseURL string) string {
	lower := strings.ToLower(baseURL)
	for _, endpoint := range APIEndpoints {
		if strings.HasSuffix(lower, endpoint) {
			return endpoint
		}
	}
	return ""
}

// BuildFetchURL joins base URL, request path and query without duplicating an
// endpoint the base URL already points at.
func BuildFetchURL(opts BuildFetchURLOptions) string {
	baseURL := NormalizeBaseURL(opts.BaseURL)
	endpoint := DetectBaseURLEndpoint(baseURL)

	path := opts.RequestPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var fetchURL string
	switch {
	case endpoint == "":
		fetchURL = baseURL + path
	case strings.ToLower(path) == endpoint:
		fetchURL = baseURL
	default:
		fetchURL = baseURL[:len(baseURL)-len(endpoint)] + path
	}

	if opts.QueryString != "" {
		fetchURL += "?" + opts.QueryString
	}
	if opts.UseGatewayRewrite {
		fetchURL = GatewayURL(fetchURL)
	}
	return fetchURL
}

var duplicateEndpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(/?v1/chat/completions)(/?v1/chat/completions)$`),
	regexp.MustCompile(`(/?v1/messages)(/?v1/messages)$`),
	regexp.MustCompile(`(/?chat/completions)(/?chat/completions)$`),
	regexp.MustCompile(`(/?v1/completions)(/?v1/completions)$`),
	regexp.MustCompile(`(/?v1/embeddings)(/?v1/embeddings)$`),
	regexp.MustCompile(`(/?v1/images/generations)(/?v1/images/generations)$`),
}

// GatewayURL collapses a doubled endpoint tail such as
// ".../v1/chat/completions/v1/chat/completions". Only the first matching pattern applies.
func GatewayURL(fetchURL string) string {
	for _, re := range duplicateEndpointPatterns {
		if re.MatchString(fetchURL) {
			return re.ReplaceAllString(fetchURL, "$1")
		}
	}
	return fetchURL
}
