// Package feishu delivers alert text to a Feishu custom bot webhook.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DIY-6/web3-script/logger"
)

// DefaultMaxLength is the largest chunk, in characters, sent in one message.
const DefaultMaxLength = 3500

// Config configures a Dispatcher.
type Config struct {
	WebhookURL string
	Keyword    string
	MaxLength  int
	Timeout    time.Duration
}

// Report summarises one Dispatch call.
type Report struct {
	Chunks int
	Sent   int
	Err    error
}

// Dispatcher posts text messages to the webhook.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	log    *logger.Log
}

type message struct {
	MsgType string  `json:"msg_type"`
	Content content `json:"content"`
}

type content struct {
	Text string `json:"text"`
}

// NewDispatcher creates a Dispatcher. An empty WebhookURL yields a
// dispatcher that drops every message.
func NewDispatcher(cfg Config, client *http.Client) *Dispatcher {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Dispatcher{cfg: cfg, client: client, log: logger.GetLogger()}
}

// Enabled reports whether a webhook is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.WebhookURL != ""
}

// Dispatch sends text in ordered chunks. The first failing chunk aborts the
// rest of the batch. Failures are logged and reported, never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) Report {
	if !d.Enabled() || text == "" {
		return Report{}
	}
	log := d.log.WithComponent("feishu")

	chunks := Chunk(text, d.cfg.MaxLength)
	rep := Report{Chunks: len(chunks)}
	for i, part := range chunks {
		if err := d.post(ctx, part); err != nil {
			rep.Err = fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			log.WithError(err).WithFields(logger.Fields{
				"chunk":  i + 1,
				"chunks": len(chunks),
			}).Warn("webhook delivery failed, dropping remaining chunks")
			return rep
		}
		rep.Sent++
	}
	log.WithFields(logger.Fields{"chunks": rep.Chunks, "chars": len([]rune(text))}).Info("alert dispatched")
	return rep
}

func (d *Dispatcher) post(ctx context.Context, part string) error {
	body, err := json.Marshal(message{
		MsgType: "text",
		Content: content{Text: d.prefix() + part},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	d.log.WithComponent("feishu").WithFields(logger.Fields{
		"status":   resp.StatusCode,
		"response": strings.TrimSpace(string(respBody)),
	}).Debug("webhook accepted message")
	return nil
}

func (d *Dispatcher) prefix() string {
	if d.cfg.Keyword == "" {
		return ""
	}
	return d.cfg.Keyword + " "
}

// Chunk splits text into ordered pieces of at most max characters. Splits
// fall on character boundaries only.
func Chunk(text string, max int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return []string{text}
	}
	out := make([]string, 0, (len(runes)+max-1)/max)
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
