package storage

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/busy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// GoogleToken loads the stored OAuth token of a user's Google connection.
func (s *Store) GoogleToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	if !validID(userID) {
		return nil, model.ErrNotFound
	}
	var tok oauth2.Token
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_type, expires_at
		FROM calendar_connections
		WHERE user_id = $1::uuid AND provider = 'google'
	`, userID).Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiresAt)
	if err != nil {
		return nil, notFound(err)
	}
	if expiresAt != nil {
		tok.Expiry = *expiresAt
	}
	return &tok, nil
}

func (s *Store) CalDAVAccount(ctx context.Context, userID string) (busy.CalDAVAccount, error) {
	if !validID(userID) {
		return busy.CalDAVAccount{}, model.ErrNotFound
	}
	var a busy.CalDAVAccount
	err := s.pool.QueryRow(ctx, `
		SELECT caldav_endpoint, caldav_username, caldav_password, caldav_calendar_path
		FROM calendar_connections
		WHERE user_id = $1::uuid AND provider = 'caldav'
	`, userID).Scan(&a.Endpoint, &a.Username, &a.Password, &a.CalendarPath)
	if err != nil {
		return busy.CalDAVAccount{}, notFound(err)
	}
	return a, nil
}
