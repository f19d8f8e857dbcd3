package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"freedomain/internal/config"

	"golang.org/x/net/proxy"
)

// Alert is a message fanned out to every enabled channel
type Alert struct {
	Subject string
	Message string
	Fields  map[string]interface{} // Extra structured data for webhooks
	Time    time.Time
}

// Notifier interface for different notification types
type Notifier interface {
	Send(alert *Alert) error
}

// NotifyService handles notifications
type NotifyService struct {
	notifiers []Notifier
}

// NewNotifyService creates a new notification service
func NewNotifyService(cfg *config.NotificationsConfig) *NotifyService {
	service := &NotifyService{
		notifiers: make([]Notifier, 0),
	}

	// Add enabled notifiers
	if cfg.Email.Enabled {
		service.notifiers = append(service.notifiers, NewEmailNotifier(&cfg.Email))
	}

	if cfg.Webhook.Enabled {
		service.notifiers = append(service.notifiers, NewWebhookNotifier(&cfg.Webhook))
	}

	if cfg.Telegram.Enabled {
		service.notifiers = append(service.notifiers, NewTelegramNotifier(&cfg.Telegram))
	}

	if cfg.DingDing.Enabled {
		service.notifiers = append(service.notifiers, NewDingDingNotifier(&cfg.DingDing))
	}

	return service
}

// NewNotifyServiceWith creates a service over the given notifiers
func NewNotifyServiceWith(notifiers ...Notifier) *NotifyService {
	return &NotifyService{notifiers: notifiers}
}

// Enabled reports whether any channel is configured
func (s *NotifyService) Enabled() bool {
	return len(s.notifiers) > 0
}

// SendAlert sends the alert through all enabled channels. It succeeds if
// at least one channel delivered it.
func (s *NotifyService) SendAlert(alert *Alert) error {
	var lastErr error
	successCount := 0

	for _, notifier := range s.notifiers {
		notifierType := fmt.Sprintf("%T", notifier)
		if err := notifier.Send(alert); err != nil {
			log.Printf("[ERROR] %s notification failed: %v", notifierType, err)
			lastErr = err
			continue
		}

		successCount++
		log.Printf("[SUCCESS] %s notification sent", notifierType)
	}

	if successCount > 0 {
		return nil
	}

	return lastErr
}

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config *config.EmailConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// Send sends email notification
func (e *EmailNotifier) Send(alert *Alert) error {
	body := fmt.Sprintf("%s\n\nTime: %s\n", alert.Message, alert.Time.Format("2006-01-02 15:04:05"))

	// Build email message
	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(e.config.To, ","))
	message += fmt.Sprintf("Subject: %s\r\n", alert.Subject)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += body

	// SMTP authentication
	auth := smtp.PlainAuth("", e.config.From, e.config.Password, e.config.SMTPHost)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)
	err := smtp.SendMail(addr, auth, e.config.From, e.config.To, []byte(message))
	if err != nil {
		// Some providers answer "short response" after accepting the message
		if !strings.Contains(err.Error(), "short response") {
			return fmt.Errorf("failed to send email: %w", err)
		}
		log.Printf("[EMAIL] Email sent (ignoring 'short response' error from SMTP server)")
	}

	log.Printf("[EMAIL] Sent %q to %v", alert.Subject, e.config.To)
	return nil
}

// WebhookNotifier sends webhook notifications
type WebhookNotifier struct {
	config *config.WebhookConfig
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{config: cfg}
}

// Send sends webhook notification
func (w *WebhookNotifier) Send(alert *Alert) error {
	payload := map[string]interface{}{
		"subject":   alert.Subject,
		"message":   alert.Message,
		"timestamp": alert.Time.Format(time.RFC3339),
	}
	for k, v := range alert.Fields {
		payload[k] = v
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(w.config.URL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// TelegramNotifier sends Telegram notifications
type TelegramNotifier struct {
	config *config.TelegramConfig
	client *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier, dialing through the
// configured SOCKS5 proxy when one is set
func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	if cfg.Proxy != "" {
		dialer, err := proxy.SOCKS5("tcp", cfg.Proxy, nil, proxy.Direct)
		if err != nil {
			log.Printf("[TELEGRAM] Failed to create SOCKS5 proxy: %v", err)
		} else {
			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				},
			}
			log.Printf("[TELEGRAM] Using SOCKS5 proxy: %s", cfg.Proxy)
		}
	}

	return &TelegramNotifier{config: cfg, client: client}
}

// Send sends Telegram notification
func (t *TelegramNotifier) Send(alert *Alert) error {
	message := fmt.Sprintf("⚠️ %s\n\n%s", alert.Subject, alert.Message)

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.config.APIURL, "/"), t.config.BotToken)

	payload := map[string]interface{}{
		"chat_id": t.config.ChatID,
		"text":    message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := t.client.Post(apiURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// DingDingNotifier sends DingTalk notifications
type DingDingNotifier struct {
	config *config.DingDingConfig
}

// NewDingDingNotifier creates a new DingTalk notifier
func NewDingDingNotifier(cfg *config.DingDingConfig) *DingDingNotifier {
	return &DingDingNotifier{config: cfg}
}

// Send sends DingTalk notification
func (d *DingDingNotifier) Send(alert *Alert) error {
	text := fmt.Sprintf("## %s\n\n%s\n\n**Time**: %s",
		alert.Subject,
		strings.ReplaceAll(alert.Message, "\n", "\n\n"),
		alert.Time.Format("2006-01-02 15:04:05"),
	)

	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]interface{}{
			"title": alert.Subject,
			"text":  text,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	webhookURL := d.config.Webhook

	// Signed webhooks carry timestamp and sign query parameters
	if d.config.Secret != "" {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		sign := d.generateSign(timestamp, d.config.Secret)

		parsedURL, err := url.Parse(webhookURL)
		if err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}

		query := parsedURL.Query()
		query.Add("timestamp", timestamp)
		query.Add("sign", sign)
		parsedURL.RawQuery = query.Encode()
		webhookURL = parsedURL.String()
	}

	resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingding webhook returned status %d", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if errCode, ok := result["errcode"].(float64); ok && errCode != 0 {
			return fmt.Errorf("dingding API error: %v", result["errmsg"])
		}
	}

	return nil
}

// generateSign computes the DingTalk HMAC-SHA256 signature
func (d *DingDingNotifier) generateSign(timestamp, secret string) string {
	stringToSign := fmt.Sprintf("%s\n%s", timestamp, secret)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
