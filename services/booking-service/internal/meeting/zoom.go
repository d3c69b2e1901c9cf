package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	zoomAPIBase  = "https://api.zoom.us/v2"
	zoomTokenURL = "https://zoom.us/oauth/token"
)

type ZoomConfig struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	// BaseURL and TokenURL default to the public Zoom endpoints.
	BaseURL    string
	TokenURL   string
	HTTPClient *http.Client
}

// Zoom talks to the Zoom REST API with a server-to-server OAuth app. The access token is cached and
// renewed a minute before it expires.
type Zoom struct {
	client  *http.Client
	baseURL string
}

func NewZoom(cfg ZoomConfig) *Zoom {
	if cfg.BaseURL == "" {
		cfg.BaseURL = zoomAPIBase
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = zoomTokenURL
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 10 * time.Second}
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oauth2.ReuseTokenSourceWithExpiry(nil, cc.TokenSource(ctx), 60*time.Second)

	return &Zoom{
		client:  oauth2.NewClient(ctx, ts),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

type zoomMeetingRequest struct {
	Topic     string              `json:"topic"`
	Type      int                 `json:"type"`
	StartTime string              `json:"start_time"`
	Duration  int                 `json:"duration"`
	Timezone  string              `json:"timezone"`
	Settings  zoomMeetingSettings `json:"settings"`
}

type zoomMeetingSettings struct {
	JoinBeforeHost bool   `json:"join_before_host"`
	WaitingRoom    bool   `json:"waiting_room"`
	AutoRecording  string `json:"auto_recording"`
}

type zoomMeetingResponse struct {
	ID      int64  `json:"id"`
	JoinURL string `json:"join_url"`
}

type zoomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateMeeting schedules a meeting (type 2) owned by the app's account user.
func (z *Zoom) CreateMeeting(ctx context.Context, topic string, start time.Time, duration time.Duration) (string, string, error) {
	body, err := json.Marshal(zoomMeetingRequest{
		Topic:     topic,
		Type:      2,
		StartTime: start.UTC().Format(time.RFC3339),
		Duration:  int(duration / time.Minute),
		Timezone:  "UTC",
		Settings: zoomMeetingSettings{
			JoinBeforeHost: true,
			WaitingRoom:    false,
			AutoRecording:  "none",
		},
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := z.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", zoomStatusError(resp)
	}
	var out zoomMeetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode zoom meeting: %w", err)
	}
	return strconv.FormatInt(out.ID, 10), out.JoinURL, nil
}

// DeleteMeeting treats an already deleted meeting as success.
func (z *Zoom) DeleteMeeting(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, z.baseURL+"/meetings/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := z.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return zoomStatusError(resp)
	}
}

func zoomStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ze zoomError
	if json.Unmarshal(raw, &ze) == nil && ze.Message != "" {
		return fmt.Errorf("zoom status %d: %s", resp.StatusCode, ze.Message)
	}
	return fmt.Errorf("zoom status %d", resp.StatusCode)
}
