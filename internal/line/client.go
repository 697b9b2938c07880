// Package line adapts the LINE Messaging API: webhook parsing, replies and
// image content download.
package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/pkg/errors"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/intake"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/logging"
)

// #region client

// maxTextRunes is the Messaging API limit for one text message.
const maxTextRunes = 5000

// maxImageBytes caps a downloaded screenshot.
const maxImageBytes = 10 << 20

// ClientConfig configures the API clients. Empty endpoints use LINE's.
type ClientConfig struct {
	AccessToken  string
	Endpoint     string
	BlobEndpoint string
	HTTPClient   *http.Client
}

// Client sends replies and downloads message content.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
	log  *log.Logger
}

// NewClient builds the messaging and blob clients.
func NewClient(cfg ClientConfig, logger *log.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("line: channel access token is required")
	}
	var apiOpts []messaging_api.MessagingApiAPIOption
	var blobOpts []messaging_api.MessagingApiBlobAPIOption
	if cfg.Endpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(cfg.Endpoint))
	}
	if cfg.BlobEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(cfg.BlobEndpoint))
	}
	if cfg.HTTPClient != nil {
		apiOpts = append(apiOpts, messaging_api.WithHTTPClient(cfg.HTTPClient))
		blobOpts = append(blobOpts, messaging_api.WithBlobHTTPClient(cfg.HTTPClient))
	}

	api, err := messaging_api.NewMessagingApiAPI(cfg.AccessToken, apiOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "line messaging client")
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.AccessToken, blobOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "line blob client")
	}
	return &Client{api: api, blob: blob, log: logging.ForComponent(logger, "line")}, nil
}

// Reply sends one text message for a reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	text = clip(intake.Tidy(text))
	if text == "" {
		return nil
	}
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   []messaging_api.MessageInterface{messaging_api.TextMessage{Text: text}},
	})
	if err != nil {
		return errors.Wrap(err, "line reply")
	}
	return nil
}

// FetchImage downloads an image message and sniffs its type.
func (c *Client) FetchImage(ctx context.Context, messageID string) ([]byte, string, error) {
	resp, err := c.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, "", errors.Wrapf(err, "line content %s", messageID)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", errors.Wrapf(err, "read content %s", messageID)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("line content %s: empty body", messageID)
	}
	return data, SniffImage(data), nil
}

// SniffImage returns image/png for PNG bytes and image/jpeg otherwise.
func SniffImage(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/png") {
		return "image/png"
	}
	return "image/jpeg"
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxTextRunes {
		return s
	}
	return string([]rune(s)[:maxTextRunes])
}

// #endregion client
