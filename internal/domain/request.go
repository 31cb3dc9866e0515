package domain

// RequestInfo is a read-through cached row from nino_request: the routing
// decision for one path.
type RequestInfo struct {
	ResponseName string
	Mime         string
	Redirect     bool
	Authorize    bool
	Execute      bool
	Dynamic      bool
}

// ResponseInfo is a read-through cached row from nino_response, minus its
// content blob (fetched separately so the cache doesn't hold large bodies
// it rarely needs).
type ResponseInfo struct {
	Mime      string
	Execute   bool
	Transpile bool
}

// ParsedRequest is what get_request hands back to a script: everything it
// needs to read the incoming HTTP request without touching net/http
// directly.
type ParsedRequest struct {
	Method     string
	Host       string
	Path       string
	Query      map[string][]string
	PostForm   map[string][]string
	UserID     string
}
