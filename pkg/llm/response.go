package llm

// ErrorResponse is the JSON error body returned by the API server.
type ErrorResponse struct {
	Error string `json:"error"`
}
