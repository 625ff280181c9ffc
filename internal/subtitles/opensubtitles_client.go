// Package subtitles implements the third-party subtitle tier of the
// transcript acquirer: a best-effort search against a community subtitle
// index for videos that have neither owner nor platform captions.
package subtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent   = "podingest/dev"
	defaultHTTPTimeout = 45 * time.Second
)

// ClientConfig describes the third-party subtitle index client configuration.
type ClientConfig struct {
	APIKey     string
	UserAgent  string
	UserToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// Client wraps a community subtitle search-and-download REST API.
type Client struct {
	apiKey    string
	userAgent string
	userToken string
	baseURL   *url.URL
	http      *http.Client
}

// NewClient creates a Client from the supplied configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("subtitles: api key is required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("subtitles: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		apiKey:    apiKey,
		userAgent: userAgent,
		userToken: strings.TrimSpace(cfg.UserToken),
		baseURL:   baseURL,
		http:      client,
	}, nil
}

// SearchRequest describes a fuzzy subtitle discovery query by free-text
// title, since podcast videos carry no catalog identifier the index knows.
type SearchRequest struct {
	Query     string
	Languages []string
}

// Subtitle represents a subtitle candidate returned by the index.
type Subtitle struct {
	ID           string
	FileID       int64
	Language     string
	Release      string
	FeatureTitle string
	Downloads    int
	AITranslated bool
}

// SearchResponse bundles the subtitles returned by a query.
type SearchResponse struct {
	Subtitles []Subtitle
	Total     int
}

// DownloadResult captures the downloaded subtitle payload.
type DownloadResult struct {
	Data        []byte
	FileName    string
	Language    string
	DownloadURL string
}

// Search queries the subtitle index for candidates matching a video title.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if c == nil {
		return SearchResponse{}, errors.New("subtitles: client is nil")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return SearchResponse{}, errors.New("subtitles: query is required")
	}

	endpoint := c.baseURL.JoinPath("subtitles")
	params := url.Values{}
	params.Set("query", query)
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("subtitles: build search request: %w", err)
	}
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("subtitles: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SearchResponse{}, fmt.Errorf("subtitles: search failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SearchResponse{}, fmt.Errorf("subtitles: decode search response: %w", err)
	}

	subtitles := make([]Subtitle, 0, len(payload.Data))
	for _, entry := range payload.Data {
		if entry.Attributes.Language == "" {
			continue
		}
		fileID := entry.Attributes.PrimaryFileID()
		if fileID == 0 {
			continue
		}
		subtitles = append(subtitles, Subtitle{
			ID:           entry.ID,
			FileID:       fileID,
			Language:     entry.Attributes.Language,
			Release:      entry.Attributes.Release,
			FeatureTitle: entry.Attributes.FeatureDetails.Title,
			Downloads:    entry.Attributes.DownloadCount,
			AITranslated: entry.Attributes.AITranslated || entry.Attributes.MachineTranslated,
		})
	}

	return SearchResponse{
		Subtitles: subtitles,
		Total:     payload.Meta.Total,
	}, nil
}

// Download retrieves the subtitle contents for the specified subtitle file.
func (c *Client) Download(ctx context.Context, fileID int64) (DownloadResult, error) {
	if c == nil {
		return DownloadResult{}, errors.New("subtitles: client is nil")
	}
	if fileID <= 0 {
		return DownloadResult{}, errors.New("subtitles: invalid file id")
	}
	payload, err := json.Marshal(map[string]any{
		"file_id":    fileID,
		"sub_format": "srt",
	})
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: encode download request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("download")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: build download request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return DownloadResult{}, fmt.Errorf("subtitles: download negotiation failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var info downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: decode download response: %w", err)
	}
	if info.Link == "" {
		return DownloadResult{}, errors.New("subtitles: download response missing link")
	}

	downloadURL, err := endpoint.Parse(info.Link)
	if err != nil {
		downloadURL, err = url.Parse(info.Link)
		if err != nil {
			return DownloadResult{}, fmt.Errorf("subtitles: parse download url: %w", err)
		}
	}

	dataReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: build link request: %w", err)
	}
	dataReq.Header.Set("User-Agent", c.userAgent)
	dataResp, err := c.http.Do(dataReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: fetch subtitle payload: %w", err)
	}
	defer dataResp.Body.Close()

	if dataResp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(dataResp.Body, 4096))
		return DownloadResult{}, fmt.Errorf("subtitles: subtitle download failed (%s): %s", dataResp.Status, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(dataResp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("subtitles: read subtitle data: %w", err)
	}

	return DownloadResult{
		Data:        data,
		FileName:    info.FileName,
		Language:    info.Language,
		DownloadURL: downloadURL.String(),
	}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.userToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.userToken)
	}
}

type searchResponse struct {
	Data []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Total int `json:"total_count"`
	} `json:"meta"`
}

type searchAttributes struct {
	Language          string         `json:"language"`
	Release           string         `json:"release"`
	DownloadCount     int            `json:"download_count"`
	AITranslated      bool           `json:"ai_translated"`
	MachineTranslated bool           `json:"machine_translated"`
	FeatureDetails    featureDetails `json:"feature_details"`
	Files             []searchFile   `json:"files"`
}

func (a searchAttributes) PrimaryFileID() int64 {
	if len(a.Files) == 0 {
		return 0
	}
	return a.Files[0].FileID
}

type featureDetails struct {
	Title string `json:"title"`
}

type searchFile struct {
	FileID int64 `json:"file_id"`
}

type downloadResponse struct {
	Link     string `json:"link"`
	FileName string `json:"file_name"`
	Language string `json:"language"`
}
