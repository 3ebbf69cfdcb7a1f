package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/dukerupert/conea/internal/model"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// ErrNotConfigured is returned when sending without a server token or recipient.
var ErrNotConfigured = errors.New("email client not configured")

// Client sends notification mail through the Postmark API to a single
// operator address.
type Client struct {
	serverToken string
	fromEmail   string
	toEmail     string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a client. baseURL prefixes relative action URLs so the
// links in mail point at the dashboard.
func NewClient(serverToken, fromEmail, toEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		toEmail:     toEmail,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token and recipient are set.
func (c *Client) Configured() bool {
	return c.serverToken != "" && c.toEmail != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

func (c *Client) link(actionURL string) string {
	if actionURL == "" {
		return c.baseURL
	}
	if strings.HasPrefix(actionURL, "http://") || strings.HasPrefix(actionURL, "https://") {
		return actionURL
	}
	return c.baseURL + "/" + strings.TrimLeft(actionURL, "/")
}

// SendNotification mails a single notification.
func (c *Client) SendNotification(ctx context.Context, n model.Notification) error {
	link := c.link(n.ActionURL)
	textBody := fmt.Sprintf("%s\n\n%s\n\n%s", n.Title, n.Message, link)
	htmlBody := fmt.Sprintf(
		`<h2>%s</h2><p>%s</p><p><a href="%s">Conea で開く</a></p>`,
		html.EscapeString(n.Title), html.EscapeString(n.Message), html.EscapeString(link),
	)

	return c.send(ctx, postmarkEmail{
		Subject:  fmt.Sprintf("[Conea] %s", n.Title),
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      string(n.Type),
	})
}

// SendDigest mails a summary of list. An empty list sends nothing.
func (c *Client) SendDigest(ctx context.Context, list []model.Notification) error {
	if len(list) == 0 {
		return nil
	}

	var text, htm strings.Builder
	htm.WriteString("<ul>")
	for _, n := range list {
		fmt.Fprintf(&text, "- [%s] %s: %s (%s)\n", n.Category, n.Title, n.Message, n.Timestamp.Format("2006-01-02 15:04"))
		fmt.Fprintf(&htm, `<li><strong>%s</strong> %s<br>%s</li>`,
			html.EscapeString(string(n.Category)), html.EscapeString(n.Title), html.EscapeString(n.Message))
	}
	htm.WriteString("</ul>")
	fmt.Fprintf(&text, "\n%s\n", c.baseURL)
	fmt.Fprintf(&htm, `<p><a href="%s">Conea を開く</a></p>`, html.EscapeString(c.baseURL))

	return c.send(ctx, postmarkEmail{
		Subject:  fmt.Sprintf("[Conea] 未読の通知 %d 件", len(list)),
		HtmlBody: htm.String(),
		TextBody: text.String(),
		Tag:      "digest",
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	payload.From = c.fromEmail
	payload.To = c.toEmail

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
