// Package samweb implements catalog.Catalog over the SAM web service.
package samweb

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/yungbote/samerge/internal/catalog"
	"github.com/yungbote/samerge/internal/pkg/httpx"
	"github.com/yungbote/samerge/internal/platform/ctxutil"
	"github.com/yungbote/samerge/internal/platform/logger"
)

type Config struct {
	// BaseURL is the experiment API root, e.g.
	// https://samweb.fnal.gov:8483/sam/uboone/api
	BaseURL    string
	Experiment string
	User       string
	// TokenFile holds a bearer token. It is re-read on every request so a
	// refreshed token is picked up mid-run.
	TokenFile string
	CertFile  string
	KeyFile   string
	Timeout   time.Duration
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

var _ catalog.Catalog = (*Client)(nil)

func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("samweb: base url required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CertFile != "" {
		keyFile := cfg.KeyFile
		if keyFile == "" {
			keyFile = cfg.CertFile
		}
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("samweb: load client certificate: %w", err)
		}
		transport.TLSClientConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	c := &Client{
		log:        log.With("service", "SAMWeb", "base_url", cfg.BaseURL),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
	c.log.Debug("catalog client ready", "token_file", cfg.TokenFile, "cert_file", cfg.CertFile)
	return c, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("samweb http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func fileURL(name string) string {
	return "/files/name/" + url.PathEscape(name)
}

// do performs exactly one request. Retrying is left to the next sweep.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, form url.Values, body any) ([]byte, error) {
	ctx = ctxutil.Default(ctx)
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	contentType := ""
	switch {
	case form != nil:
		reader = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case body != nil:
		b, err := json.Marshal(body)
		if err != nil {
			return nil, catalog.NewError(op, 0, false, err)
		}
		reader = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, catalog.NewError(op, 0, false, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.TokenFile != "" {
		tok, err := os.ReadFile(c.cfg.TokenFile)
		if err != nil {
			return nil, catalog.NewError(op, 0, true, fmt.Errorf("read token: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(tok)))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, catalog.NewError(op, 0, httpx.IsRetryableError(err), err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, catalog.NewError(op, resp.StatusCode, true, readErr)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, catalog.NewError(op, resp.StatusCode, false, catalog.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &httpError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		return nil, catalog.NewError(op, resp.StatusCode, httpx.IsRetryableError(herr), herr)
	}
	return raw, nil
}

func (c *Client) ListFiles(ctx context.Context, dims string) ([]string, error) {
	raw, err := c.do(ctx, "listFiles", http.MethodGet, "/files/list",
		url.Values{"dims": {dims}, "format": {"plain"}}, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

func (c *Client) GetMetadata(ctx context.Context, name string) (*catalog.Metadata, error) {
	raw, err := c.do(ctx, "getMetadata", http.MethodGet, fileURL(name)+"/metadata",
		url.Values{"format": {"json"}}, nil, nil)
	if err != nil {
		return nil, err
	}
	var md map[string]any
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, catalog.NewError("getMetadata", 0, false, fmt.Errorf("decode: %w", err))
	}
	return catalog.ParseMetadata(md)
}

func (c *Client) ModifyMetadata(ctx context.Context, name string, changes map[string]any) error {
	_, err := c.do(ctx, "modifyMetadata", http.MethodPut, fileURL(name)+"/metadata", nil, nil, changes)
	return err
}

func (c *Client) LocateFile(ctx context.Context, name string) ([]catalog.Location, error) {
	raw, err := c.do(ctx, "locateFile", http.MethodGet, fileURL(name)+"/locations",
		url.Values{"format": {"json"}}, nil, nil)
	if err != nil {
		return nil, err
	}
	var locs []catalog.Location
	if err := json.Unmarshal(raw, &locs); err != nil {
		return nil, catalog.NewError("locateFile", 0, false, fmt.Errorf("decode: %w", err))
	}
	return locs, nil
}

func (c *Client) AddFileLocation(ctx context.Context, name, location string) error {
	_, err := c.do(ctx, "addFileLocation", http.MethodPost, fileURL(name)+"/locations",
		nil, url.Values{"add": {location}}, nil)
	return err
}

func (c *Client) RemoveFileLocation(ctx context.Context, name, location string) error {
	_, err := c.do(ctx, "removeFileLocation", http.MethodPost, fileURL(name)+"/locations",
		nil, url.Values{"remove": {location}}, nil)
	return err
}

func (c *Client) CreateDefinition(ctx context.Context, defname, dims string) error {
	form := url.Values{"defname": {defname}, "dims": {dims}}
	if c.cfg.User != "" {
		form.Set("user", c.cfg.User)
	}
	if c.cfg.Experiment != "" {
		form.Set("group", c.cfg.Experiment)
	}
	_, err := c.do(ctx, "createDefinition", http.MethodPost, "/definitions/create", nil, form, nil)
	return err
}

func (c *Client) StartProject(ctx context.Context, project, defname string) error {
	form := url.Values{"name": {project}, "defname": {defname}}
	if c.cfg.Experiment != "" {
		form.Set("station", c.cfg.Experiment)
		form.Set("group", c.cfg.Experiment)
	}
	if c.cfg.User != "" {
		form.Set("user", c.cfg.User)
	}
	_, err := c.do(ctx, "startProject", http.MethodPost, "/projects", nil, form, nil)
	return err
}

func (c *Client) StopProject(ctx context.Context, project string) error {
	_, err := c.do(ctx, "stopProject", http.MethodPost, "/projects/name/"+url.PathEscape(project)+"/end", nil, url.Values{}, nil)
	return err
}

type projectSummary struct {
	Name      string             `json:"project_name"`
	Status    string             `json:"project_status"`
	StartTime string             `json:"project_start_time"`
	EndTime   string             `json:"project_end_time"`
	Processes []catalog.Consumer `json:"processes"`
}

func (c *Client) ProjectSummary(ctx context.Context, project string) (*catalog.ProjectSummary, error) {
	raw, err := c.do(ctx, "projectSummary", http.MethodGet, "/projects/name/"+url.PathEscape(project)+"/summary",
		url.Values{"format": {"json"}}, nil, nil)
	if err != nil {
		return nil, err
	}
	var ps projectSummary
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, catalog.NewError("projectSummary", 0, false, fmt.Errorf("decode: %w", err))
	}
	out := &catalog.ProjectSummary{Name: ps.Name, Status: ps.Status, Consumers: ps.Processes}
	if out.Name == "" {
		out.Name = project
	}
	if t, err := catalog.ParseTime(ps.StartTime); err == nil {
		out.StartTime = &t
	}
	if strings.TrimSpace(ps.EndTime) != "" {
		t, err := catalog.ParseTime(ps.EndTime)
		if err != nil {
			return nil, catalog.NewError("projectSummary", 0, false, err)
		}
		out.EndTime = &t
	}
	return out, nil
}
