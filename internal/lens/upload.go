package lens

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// refreshURLPattern pulls the target out of a meta refresh content value, e.g. 0; URL='/search?p=1'
var refreshURLPattern = regexp.MustCompile(`(?i)url\s*=\s*['"]?([^'"\s]+)`)

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// upload posts the image without following redirects, then fetches the results page it points at
func (c *Client) upload(ctx context.Context, log *logrus.Entry, filename, contentType string, data []byte) (*SearchResult, error) {
	form, formContentType, err := buildUploadForm(filename, contentType, data)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/upload", nil), form)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formContentType)

	resp, err := c.uploadDoer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close response body")
		}
	}()

	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	target := c.resultsTarget(resp, body)
	log.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"target": target,
	}).Debug("Received upload response")

	if target == "" {
		return nil, newUploadError("upload", resp.StatusCode, body)
	}

	return c.fetchResults(ctx, log, "results", target)
}

// buildUploadForm encodes the multipart body the upload endpoint expects
func buildUploadForm(filename, contentType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="encoded_image"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := w.WriteField("image_content", ""); err != nil {
		return nil, "", fmt.Errorf("failed to write image_content field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// resultsTarget returns the absolute results URL named by an upload response, or ""
func (c *Client) resultsTarget(resp *http.Response, body []byte) string {
	var ref string
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		ref = resp.Header.Get("Location")
	case resp.StatusCode == http.StatusOK:
		ref = metaRefreshTarget(body)
	}
	if ref == "" {
		return ""
	}
	return c.resolve(ref)
}

func (c *Client) resolve(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return c.baseURL.ResolveReference(u).String()
}

// metaRefreshTarget finds the URL of a <meta http-equiv="refresh"> tag
func metaRefreshTarget(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var target string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			return true
		}
		m := refreshURLPattern.FindStringSubmatch(s.AttrOr("content", ""))
		if m == nil {
			return true
		}
		target = m[1]
		return false
	})
	return target
}
