package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/agentflow/internal/security"
	"github.com/BDNK1/agentflow/runtime/plugin"
)

// Config holds the extractor configuration
type Config struct {
	Timeout   time.Duration `yaml:"timeout" default:"20s" validate:"gte=1s"`
	MaxBytes  int64         `yaml:"max_bytes" default:"5242880" validate:"gte=1024"`
	UserAgent string        `yaml:"user_agent" default:"agentflow/1.0"`
	// BaseDir confines extract_file to one directory tree. Empty allows any path.
	BaseDir string `yaml:"base_dir"`
}

// ExtractorPlugin serves extract_url and extract_file steps
type ExtractorPlugin struct {
	Config Config
	client *resty.Client
}

var (
	_ plugin.ContentExtractor = (*ExtractorPlugin)(nil)
	_ plugin.Lifecycle        = (*ExtractorPlugin)(nil)
)

func (p *ExtractorPlugin) Initialize(ctx context.Context) error {
	p.client = resty.New().
		SetTimeout(p.Config.Timeout).
		SetHeader("User-Agent", p.Config.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	return nil
}

func (p *ExtractorPlugin) Shutdown(ctx context.Context) error {
	p.client = nil
	return nil
}

// ExtractFromURL fetches a page and returns its readable text, title and links.
func (p *ExtractorPlugin) ExtractFromURL(ctx context.Context, rawURL string) (*plugin.URLContent, error) {
	if p.client == nil {
		return nil, fmt.Errorf("extract plugin is not initialized")
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	if resp.IsError() {
		return nil, plugin.NewCollaboratorError(fmt.Errorf("fetch returned %s", resp.Status())).
			WithStatus(resp.StatusCode()).
			WithRetryHint(resp.StatusCode() >= 500, "")
	}

	body, err := readLimited(raw, p.Config.MaxBytes)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}

	result := &plugin.URLContent{
		URL:   u.String(),
		Links: []string{},
		Metadata: map[string]any{
			"statusCode":  resp.StatusCode(),
			"contentType": contentType,
			"length":      len(body),
		},
	}

	if isHTML(contentType) {
		doc, err := parseHTML(body, u)
		if err != nil {
			return nil, err
		}
		result.Title = doc.title
		result.Content = doc.text
		result.Links = doc.links
		if doc.description != "" {
			result.Metadata["description"] = doc.description
		}
		return result, nil
	}

	if !isText(contentType) {
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
	result.Content = strings.TrimSpace(string(body))
	return result, nil
}

// ExtractFromFile reads a local file and returns its text content.
func (p *ExtractorPlugin) ExtractFromFile(ctx context.Context, path string) (*plugin.FileContent, error) {
	if p.Config.BaseDir != "" {
		resolved, err := security.ResolveWithin(p.Config.BaseDir, path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	if !security.IsRegularFile(path) {
		return nil, fmt.Errorf("%s is not a readable file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	body, err := readLimited(f, p.Config.MaxBytes)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(body)
	result := &plugin.FileContent{
		Path: path,
		Type: mtype.String(),
		Metadata: map[string]any{
			"size":      len(body),
			"extension": mtype.Extension(),
		},
	}

	switch {
	case mtype.Is("text/html"):
		doc, err := parseHTML(body, nil)
		if err != nil {
			return nil, err
		}
		result.Content = doc.text
		if doc.title != "" {
			result.Metadata["title"] = doc.title
		}
	case isText(mtype.String()):
		result.Content = strings.TrimSpace(string(body))
	default:
		return nil, fmt.Errorf("unsupported file type %s", mtype.String())
	}
	return result, nil
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if int64(len(body)) > max {
		return nil, fmt.Errorf("content exceeds %d bytes", max)
	}
	return bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// isText accepts text/* plus the structured text formats worth handing to a model.
func isText(contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, t := range []string{"json", "xml", "yaml", "csv", "javascript"} {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}
