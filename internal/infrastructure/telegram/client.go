package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"HSEWrapped/internal/config"
	"HSEWrapped/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to the Telegram Bot API over plain HTTP.
type Client struct {
	apiURL   string
	botToken string
	client   *http.Client
}

var _ ports.Messenger = (*Client)(nil)

// NewClient registers the bot token. The HTTP timeout leaves room for long polls.
func NewClient(cfg config.TelegramConfig) *Client {
	apiURL := strings.TrimSuffix(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiURL:   apiURL,
		botToken: cfg.BotToken,
		client:   &http.Client{Timeout: cfg.PollTimeout + 30*time.Second},
	}
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	form.Set("offset", strconv.FormatInt(offset, 10))
	form.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	form.Set("allowed_updates", `["message"]`)

	var updates []Update
	if err := c.postForm(ctx, "getUpdates", form, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendText posts a plain text message and returns its id.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)

	var msg Message
	if err := c.postForm(ctx, "sendMessage", form, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditText replaces the text of a message sent earlier.
func (c *Client) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("message_id", strconv.FormatInt(messageID, 10))
	form.Set("text", text)
	return c.postForm(ctx, "editMessageText", form, nil)
}

// DeleteMessage removes a message from the chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("message_id", strconv.FormatInt(messageID, 10))
	return c.postForm(ctx, "deleteMessage", form, nil)
}

// SendMediaGroup uploads photos as one album with caption on the first item.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, photos []string, caption string) error {
	if len(photos) == 0 {
		return fmt.Errorf("media group is empty")
	}

	media := make([]inputMediaPhoto, 0, len(photos))
	files := make(map[string]string, len(photos))
	for i, path := range photos {
		field := fmt.Sprintf("photo%d", i)
		item := inputMediaPhoto{Type: "photo", Media: "attach://" + field}
		if i == 0 {
			item.Caption = caption
		}
		media = append(media, item)
		files[field] = path
	}
	encoded, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}

	fields := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"media":   string(encoded),
	}
	return c.postMultipart(ctx, "sendMediaGroup", fields, files, nil)
}

// SendPhoto uploads a single image.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path string) error {
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	return c.postMultipart(ctx, "sendPhoto", fields, map[string]string{"photo": path}, nil)
}

// SendVideo uploads a video with an optional caption.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		fields["caption"] = caption
	}
	return c.postMultipart(ctx, "sendVideo", fields, map[string]string{"video": path}, nil)
}

func (c *Client) postForm(ctx context.Context, method string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, method, out)
}

func (c *Client) postMultipart(ctx context.Context, method string, fields, files map[string]string, out any) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for field, path := range files {
		if err := attachFile(writer, field, path); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), &body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, method, out)
}

func attachFile(writer *multipart.Writer, field, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, method string, out any) error {
	if c.botToken == "" {
		return fmt.Errorf("telegram client misconfigured")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("telegram %s: %s: decode response: %w", method, resp.Status, err)
	}
	if !env.OK {
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.botToken, method)
}
