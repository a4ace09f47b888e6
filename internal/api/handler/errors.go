package handler

// errorResponse documents the error envelope in the route annotations; the
// api package renders it.
type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}
