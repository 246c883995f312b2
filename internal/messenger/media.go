package messenger

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// download fetches url, refusing bodies larger than maxBytes.
func download(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit of %d", rawURL, resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("download %s: exceeds limit of %d bytes", rawURL, maxBytes)
	}
	return data, nil
}

var defaultNames = map[AttachmentKind]string{
	KindImage:    "image",
	KindVideo:    "video",
	KindDocument: "document",
}

// attachmentName picks the upload file name: the explicit name, else the
// last URL path segment, with an extension derived from MIMEType if missing.
func attachmentName(a Attachment) string {
	if a.FileName != "" {
		return a.FileName
	}

	name := ""
	if u, err := url.Parse(a.URL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = defaultNames[a.Kind]
		if name == "" {
			name = "upload"
		}
	}

	if path.Ext(name) == "" && a.MIMEType != "" {
		if exts, err := mime.ExtensionsByType(a.MIMEType); err == nil && len(exts) > 0 {
			name += exts[0]
		}
	}
	return strings.TrimSpace(name)
}
