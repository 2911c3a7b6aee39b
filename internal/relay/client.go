// Package relay is the HTTP client for the datastore collaborator. It
// implements the same store contracts as the in-process adapters, so
// the messaging services are indifferent to which side of the wire
// their datastore lives on.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"sealchat/internal/domain"
)

// Client talks JSON to a feedrelay instance.
type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string) *Client {
	return &Client{Base: base, HTTP: http.DefaultClient}
}

// ---------- KeyDirectory ----------

func (c *Client) PublishKey(ctx context.Context, rec domain.KeyRecord) error {
	return c.post(ctx, "/keys", rec, nil)
}

func (c *Client) ActiveKey(ctx context.Context, user domain.UserID) (domain.KeyRecord, bool, error) {
	var rec domain.KeyRecord
	found, err := c.getJSON(ctx, "/keys/"+url.PathEscape(string(user)), &rec)
	if err != nil {
		return domain.KeyRecord{}, false, err
	}
	return rec, found, nil
}

func (c *Client) ReplaceKey(ctx context.Context, rec domain.KeyRecord) error {
	return c.post(ctx, "/keys/replace", rec, nil)
}

// ---------- ConversationStore ----------

func (c *Client) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	return c.post(ctx, "/conversations", conv, nil)
}

func (c *Client) GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var conv domain.Conversation
	found, err := c.getJSON(ctx, "/conversations/"+url.PathEscape(string(id)), &conv)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !found {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return conv, nil
}

func (c *Client) FindDirectConversation(ctx context.Context, a, b domain.UserID) (domain.Conversation, bool, error) {
	var conv domain.Conversation
	path := "/conversations/direct?a=" + url.QueryEscape(string(a)) + "&b=" + url.QueryEscape(string(b))
	found, err := c.getJSON(ctx, path, &conv)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, found, nil
}

func (c *Client) UserConversations(ctx context.Context, user domain.UserID) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if _, err := c.getJSON(ctx, "/users/"+url.PathEscape(string(user))+"/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- MessageStore ----------

func (c *Client) AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	var stored domain.Message
	if err := c.post(ctx, "/messages", msg, &stored); err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

func (c *Client) GetMessage(ctx context.Context, id domain.MessageID) (domain.Message, error) {
	var msg domain.Message
	found, err := c.getJSON(ctx, "/messages/"+url.PathEscape(string(id)), &msg)
	if err != nil {
		return domain.Message{}, err
	}
	if !found {
		return domain.Message{}, fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	return msg, nil
}

func (c *Client) Messages(ctx context.Context, conv domain.ConversationID, limit int) ([]domain.Message, error) {
	path := "/conversations/" + url.PathEscape(string(conv)) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.Message
	if _, err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type editRequest struct {
	Ciphertext []byte                   `json:"ciphertext"`
	Keys       map[domain.UserID][]byte `json:"keys,omitempty"`
	EditedAt   time.Time                `json:"edited_at"`
}

func (c *Client) UpdateCiphertext(ctx context.Context, id domain.MessageID, ciphertext []byte, keys map[domain.UserID][]byte, editedAt time.Time) error {
	req := editRequest{Ciphertext: ciphertext, Keys: keys, EditedAt: editedAt}
	return c.post(ctx, "/messages/"+url.PathEscape(string(id))+"/edit", req, nil)
}

func (c *Client) MarkDeleted(ctx context.Context, id domain.MessageID) error {
	return c.post(ctx, "/messages/"+url.PathEscape(string(id))+"/delete", nil, nil)
}

type receiptRequest struct {
	At time.Time `json:"at"`
}

func (c *Client) MarkDelivered(ctx context.Context, id domain.MessageID, at time.Time) error {
	return c.post(ctx, "/messages/"+url.PathEscape(string(id))+"/delivered", receiptRequest{At: at}, nil)
}

func (c *Client) MarkRead(ctx context.Context, id domain.MessageID, at time.Time) error {
	return c.post(ctx, "/messages/"+url.PathEscape(string(id))+"/read", receiptRequest{At: at}, nil)
}

// ---------- helpers ----------

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if in != nil {
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	if err := statusErr(resp, path); err != nil {
		return err
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// getJSON returns found=false on a 404 instead of an error, since the
// store contracts treat absence as a normal outcome.
func (c *Client) getJSON(ctx context.Context, path string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := statusErr(resp, path); err != nil {
		return false, err
	}
	return true, json.NewDecoder(resp.Body).Decode(out)
}

func statusErr(resp *http.Response, path string) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return domain.ErrKeyRecordExists
	case http.StatusGone:
		return domain.ErrWindowExpired
	case http.StatusPreconditionFailed:
		return domain.ErrNotDelivered
	case http.StatusNotFound:
		return domain.ErrNotFound
	}
	return fmt.Errorf("relay %s: %s", path, resp.Status)
}

var (
	_ domain.KeyDirectory      = (*Client)(nil)
	_ domain.ConversationStore = (*Client)(nil)
	_ domain.MessageStore      = (*Client)(nil)
)
