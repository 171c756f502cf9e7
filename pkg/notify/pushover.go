package notify

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPushoverEndpoint = "https://api.pushover.net/1/messages.json"

	pushoverPriorityHigh = "1"
	pushoverTimeout      = 5 * time.Second
)

// Pushover sends high-priority messages through the Pushover API.
type Pushover struct {
	Token    string
	User     string
	Endpoint string

	client *http.Client
}

var _ Notifier = &Pushover{}

func NewPushover(token, user string) *Pushover {
	return &Pushover{
		Token:    token,
		User:     user,
		Endpoint: DefaultPushoverEndpoint,
		client:   &http.Client{Timeout: pushoverTimeout},
	}
}

func (p *Pushover) Notify(title, message string) {
	if err := p.send(title, message); err != nil {
		logrus.WithError(err).WithField("title", title).Error("failed to send pushover notification")
		return
	}
	logrus.WithField("title", title).Info("pushover notification sent")
}

func (p *Pushover) send(title, message string) error {
	if p.Token == "" || p.User == "" {
		return pkgerrors.New("pushover token or user key is empty")
	}

	form := url.Values{}
	form.Set("token", p.Token)
	form.Set("user", p.User)
	form.Set("title", title)
	form.Set("message", message)
	form.Set("priority", pushoverPriorityHigh)

	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultPushoverEndpoint
	}
	client := p.client
	if client == nil {
		client = &http.Client{Timeout: pushoverTimeout}
	}

	resp, err := client.Post(endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return pkgerrors.Wrap(err, "failed to post message")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.Errorf("pushover returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	return nil
}
