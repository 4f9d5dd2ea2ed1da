package backend

// AskRequest is a single question sent to the inference backend. A non-empty
// DocumentID selects the document-grounded endpoint.
type AskRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	NResults   int    `json:"n_results,omitempty"`
}

// Grounded reports whether the request targets an ingested document.
func (r AskRequest) Grounded() bool {
	return r.DocumentID != ""
}

// IngestRequest uploads a document for chunking and embedding.
type IngestRequest struct {
	Filename string
	Data     []byte
}

// IngestResult is the backend's acknowledgement of an ingested document.
type IngestResult struct {
	DocumentID string `json:"id"`
	Filename   string `json:"filename"`
	Message    string `json:"message"`
}

// Frame is one decoded server-sent event payload from an ask stream.
type Frame struct {
	Content string   `json:"content,omitempty"`
	Done    bool     `json:"done,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Source is a retrieved passage as reported on the wire.
type Source struct {
	Filename string   `json:"filename"`
	Score    *float64 `json:"score,omitempty"`
	Text     string   `json:"text"`
}
