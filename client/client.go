// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"quill/internal/blob"
	"quill/internal/branch"
	"quill/internal/commit"
	"quill/internal/diff"
	"quill/internal/merge"
	"quill/internal/template"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func (c *Client) post(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var apiErr struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return fmt.Errorf("%s: %s", apiErr.Type, apiErr.Message)
}

// CreateTemplateResponse pairs a new template with its root commit.
type CreateTemplateResponse struct {
	Template *template.Template `json:"template"`
	Commit   *commit.Commit     `json:"commit"`
}

func (c *Client) CreateTemplate(name, description, author, html, css, js string) (*CreateTemplateResponse, error) {
	var out CreateTemplateResponse
	err := c.post("/api/templates", map[string]string{
		"name":        name,
		"description": description,
		"author":      author,
		"html":        html,
		"css":         css,
		"js":          js,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTemplates() ([]*template.Template, error) {
	var out []*template.Template
	if err := c.get("/api/templates", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Commit(templateID, branchName, author, message, html, css, js string) (*commit.Commit, error) {
	var out commit.Commit
	err := c.post(fmt.Sprintf("/api/templates/%s/commits", templateID), map[string]string{
		"branch":  branchName,
		"author":  author,
		"message": message,
		"html":    html,
		"css":     css,
		"js":      js,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Show(templateID, commitID string) (*blob.Blob, error) {
	var out blob.Blob
	if err := c.get(fmt.Sprintf("/api/templates/%s/commits/%s", templateID, commitID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) History(templateID, branchName string, limit int) ([]template.HistoryEntry, error) {
	path := fmt.Sprintf("/api/templates/%s/branches/%s/history", templateID, branchName)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out []template.HistoryEntry
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Diff(templateID, from, to string) ([]diff.SectionDiff, error) {
	path := fmt.Sprintf("/api/templates/%s/diff?from=%s&to=%s",
		templateID, url.QueryEscape(from), url.QueryEscape(to))
	var out []diff.SectionDiff
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBranch(templateID, name, fromBranch, author, description string) (*branch.Branch, error) {
	var out branch.Branch
	err := c.post(fmt.Sprintf("/api/templates/%s/branches", templateID), map[string]string{
		"name":        name,
		"from_branch": fromBranch,
		"author":      author,
		"description": description,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListBranches(templateID string) ([]*branch.Branch, error) {
	var out []*branch.Branch
	if err := c.get(fmt.Sprintf("/api/templates/%s/branches", templateID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Merge(templateID, source, target, author, message string) (*merge.Result, error) {
	var out merge.Result
	err := c.post(fmt.Sprintf("/api/templates/%s/merge", templateID), map[string]string{
		"source":  source,
		"target":  target,
		"author":  author,
		"message": message,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PreviewMerge(templateID, source, target string) (*merge.Result, error) {
	var out merge.Result
	err := c.post(fmt.Sprintf("/api/templates/%s/merge/preview", templateID), map[string]string{
		"source": source,
		"target": target,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Rollback(templateID, branchName, commitID, author string) (*commit.Commit, error) {
	var out commit.Commit
	err := c.post(fmt.Sprintf("/api/templates/%s/rollback", templateID), map[string]string{
		"branch":    branchName,
		"commit_id": commitID,
		"author":    author,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
