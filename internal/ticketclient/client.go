// Package ticketclient implements the REST collaborator contract the
// gateway dispatches messages to: person lookup, issue/comment creation,
// spam-count query, and per-person timezone lookup, all behind HTTP
// Basic Auth and the fixed ReturnCode/ResourceName/content/Messages
// envelope.
package ticketclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hkdb/srq-mailgate/internal/config"
	"github.com/hkdb/srq-mailgate/internal/logging"
	"github.com/rs/zerolog"
)

// envelope is the fixed response shape every call returns.
type envelope struct {
	ReturnCode   int               `json:"ReturnCode"`
	ResourceName string            `json:"ResourceName"`
	Content      []json.RawMessage `json:"content"`
	Messages     []string          `json:"Messages"`
}

// Client talks to the ticketing REST API over HTTP Basic Auth.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	log      zerolog.Logger
}

func New(cfg config.TicketClientConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      logging.WithComponent("ticketclient"),
	}
}

// Person is a resolved ticketing-system person record.
type Person struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Issue is a created or looked-up ticket.
type Issue struct {
	ID      string `json:"id"`
	SRQ     string `json:"srq"`
	Subject string `json:"subject"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reqBody []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = b
	}

	fullURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, fullURL, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", fullURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &env, fmt.Errorf("%s %s returned HTTP %d: %v", method, fullURL, resp.StatusCode, env.Messages)
	}
	return &env, nil
}

// FindPersonByEmail resolves a sender address to a known person. A nil
// Person with a nil error means the lookup succeeded but found nobody —
// the caller decides what to do per the configured onPersonNotFound
// policy.
func (c *Client) FindPersonByEmail(ctx context.Context, email string) (*Person, error) {
	env, err := c.do(ctx, http.MethodGet, "/persons?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}
	if len(env.Content) == 0 {
		return nil, nil
	}
	var p Person
	if err := json.Unmarshal(env.Content[0], &p); err != nil {
		return nil, fmt.Errorf("decode person: %w", err)
	}
	return &p, nil
}

// FindIssueBySRQ looks up an existing issue by its SRQ reference,
// extracted from a reply subject line.
func (c *Client) FindIssueBySRQ(ctx context.Context, srq string) (*Issue, error) {
	env, err := c.do(ctx, http.MethodGet, "/issues?srq="+url.QueryEscape(srq), nil)
	if err != nil {
		return nil, err
	}
	if len(env.Content) == 0 {
		return nil, nil
	}
	var issue Issue
	if err := json.Unmarshal(env.Content[0], &issue); err != nil {
		return nil, fmt.Errorf("decode issue: %w", err)
	}
	return &issue, nil
}

// CreateIssueRequest is the body of a new-issue creation call.
type CreateIssueRequest struct {
	PersonID string            `json:"personId"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// CreateIssue opens a new ticket and returns it, including the server's
// assigned SRQ reference.
func (c *Client) CreateIssue(ctx context.Context, req CreateIssueRequest) (*Issue, error) {
	env, err := c.do(ctx, http.MethodPost, "/issues", req)
	if err != nil {
		return nil, err
	}
	if len(env.Content) == 0 {
		return nil, fmt.Errorf("create issue: empty content in response")
	}
	var issue Issue
	if err := json.Unmarshal(env.Content[0], &issue); err != nil {
		return nil, fmt.Errorf("decode created issue: %w", err)
	}
	return &issue, nil
}

// AddCommentRequest is the body of an add-comment-to-issue call.
type AddCommentRequest struct {
	PersonID string `json:"personId"`
	Body     string `json:"body"`
}

// AddComment appends a comment to an existing issue.
func (c *Client) AddComment(ctx context.Context, issueID string, req AddCommentRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/issues/"+url.PathEscape(issueID)+"/comments", req)
	return err
}

// UploadAttachmentRequest is one file to upload: its name, MIME type and
// raw bytes. The target resource is passed to UploadAttachment separately.
type UploadAttachmentRequest struct {
	FileName    string
	ContentType string
	Content     []byte
}

// UploadAttachment posts content to the attachments path of the issue
// resourceID. There is no comment attachments path: files sent with a
// comment are attached to the comment's issue.
func (c *Client) UploadAttachment(ctx context.Context, resourceID string, att UploadAttachmentRequest) error {
	payload := map[string]any{
		"fileName":    att.FileName,
		"contentType": att.ContentType,
		"content":     att.Content,
	}
	_, err := c.do(ctx, http.MethodPost, "/issues/"+url.PathEscape(resourceID)+"/attachments", payload)
	return err
}

// CountIssuesSince implements spamgate.IssueCounter: the number of issues
// a given person-id has opened since the given time, used by the spam
// gate's volume check.
func (c *Client) CountIssuesSince(personID string, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path := fmt.Sprintf("/issues/count?personId=%s&since=%s", url.QueryEscape(personID), url.QueryEscape(since.Format(time.RFC3339)))
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	if len(env.Content) == 0 {
		return 0, nil
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Content[0], &result); err != nil {
		return 0, fmt.Errorf("decode issue count: %w", err)
	}
	return result.Count, nil
}

// PersonTimezone returns personID's UTC offset (e.g. "+03:00"), used to
// adjust parsed date attributes per spec.md §4.6.
func (c *Client) PersonTimezone(ctx context.Context, personID string) (string, error) {
	env, err := c.do(ctx, http.MethodGet, "/persons/"+url.PathEscape(personID)+"/timezone", nil)
	if err != nil {
		return "", err
	}
	if len(env.Content) == 0 {
		return "", fmt.Errorf("person timezone: empty content in response")
	}
	var result struct {
		Offset string `json:"offset"`
	}
	if err := json.Unmarshal(env.Content[0], &result); err != nil {
		return "", fmt.Errorf("decode person timezone: %w", err)
	}
	return result.Offset, nil
}
