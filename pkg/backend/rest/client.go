package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/pdfchat/pkg/backend"
)

const (
	chatPath       = "/chat/"
	chatFilePath   = "/chat-file-stream/"
	uploadPath     = "/upload/"
	maxErrorBody   = 64 << 10
	maxNResults    = 10
	defaultResults = 3
)

// Client implements backend.Backend over the multipart-form HTTP API served
// by the document chat backend.
type Client struct {
	config     *backend.Config
	httpClient *http.Client
	stream     *http.Client
}

// New creates a client with the given configuration. The configured timeout
// applies to uploads only; streaming answers are bounded by the caller's
// context so long generations are not cut off mid-stream.
func New(config *backend.Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		stream:     &http.Client{},
	}
}

// Ask posts the query and returns the open server-sent event body.
func (c *Client) Ask(ctx context.Context, req backend.AskRequest) (io.ReadCloser, error) {
	fields := map[string]string{"query": req.Query}
	path := chatPath
	if req.Grounded() {
		path = chatFilePath
		fields["document_id"] = req.DocumentID
		fields["n_results"] = strconv.Itoa(c.nResults(req.NResults))
	}

	body, contentType, err := encodeForm(fields, "", nil)
	if err != nil {
		return nil, fmt.Errorf("encoding ask form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// Ingest uploads the document as the multipart "file" field.
func (c *Client) Ingest(ctx context.Context, req backend.IngestRequest) (*backend.IngestResult, error) {
	body, contentType, err := encodeForm(nil, req.Filename, req.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding upload form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(uploadPath), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	var result backend.IngestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if result.DocumentID == "" {
		return nil, fmt.Errorf("no document id in response")
	}
	if result.Filename == "" {
		result.Filename = req.Filename
	}
	return &result, nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

func (c *Client) nResults(n int) int {
	if n <= 0 {
		n = c.config.NResults
	}
	if n <= 0 {
		n = defaultResults
	}
	return min(n, maxNResults)
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return backend.NewStatusError(resp.StatusCode, resp.Header.Get("Content-Type"), data)
}

// encodeForm writes fields and an optional file part into a multipart body.
func encodeForm(fields map[string]string, filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
