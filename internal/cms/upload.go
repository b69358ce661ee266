package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// UploadFile is a file to send to the media library.
type UploadFile struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Upload posts files as multipart form data to /upload and returns the
// raw media records the CMS created.
func (c *Client) Upload(
	ctx context.Context,
	token string,
	files ...UploadFile,
) ([]map[string]any, error) {
	const path = "/upload"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		header.Set("Content-Type", ct)

		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("creating multipart part for %s: %w", f.Name, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("copying %s into upload: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+path, &buf,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var raw json.RawMessage
	if err := c.send(req, path, &raw); err != nil {
		return nil, err
	}

	var created []map[string]any
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, &MalformedError{Path: path, Reason: "upload response is not an array"}
	}
	return created, nil
}
