package domain

import (
	"math"
	"strings"
	"time"
)

const (
	MaxContentSize           = 100000
	MinExpirationMinutes     = 1
	MaxExpirationMinutes     = 10080
	DefaultExpirationMinutes = 60
	MaxPasswordLength        = 1024
)

type ContentType string

const (
	ContentText ContentType = "text"
	ContentURL  ContentType = "url"
	ContentCode ContentType = "code"
)

func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContentText:
		return ContentText, nil
	case ContentURL:
		return ContentURL, nil
	case ContentCode:
		return ContentCode, nil
	}
	return "", ErrInvalidContentType
}

// Clip is also the durable tier record; timestamps encode as RFC 3339.
type Clip struct {
	ID               string      `json:"id"`
	Content          string      `json:"content"`
	ContentType      ContentType `json:"contentType"`
	CreatedAt        time.Time   `json:"createdAt"`
	ExpiresAt        time.Time   `json:"expiresAt"`
	AccessCount      int         `json:"accessCount"`
	MaxAccess        int         `json:"maxAccess,omitempty"`
	PasswordHash     string      `json:"passwordHash,omitempty"`
	BurnAfterReading bool        `json:"burnAfterReading"`
}

func (c *Clip) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *Clip) AccessExhausted() bool {
	return c.MaxAccess > 0 && c.AccessCount >= c.MaxAccess
}

func (c *Clip) Protected() bool {
	return c.PasswordHash != ""
}

// Remaining is the lifetime left at now, rounded up to whole seconds.
// Zero means the clip is already past its expiry.
func (c *Clip) Remaining(now time.Time) time.Duration {
	d := c.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(d.Seconds())) * time.Second
}

func (c *Clip) Info() *ClipInfo {
	return &ClipInfo{
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
		AccessCount: c.AccessCount,
		ContentType: c.ContentType,
	}
}

type ClipInfo struct {
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
	AccessCount int         `json:"accessCount"`
	ContentType ContentType `json:"contentType"`
}

type CreateParams struct {
	Content           string
	ContentType       ContentType
	ExpirationMinutes int
	Password          string
	BurnAfterReading  bool
	MaxAccess         int
}

// Validate checks the bounds the HTTP adapter enforces before a create
// reaches the store. The store itself trusts its input.
func (p *CreateParams) Validate(maxSize int) error {
	if p.Content == "" {
		return ErrContentRequired
	}
	if maxSize <= 0 || maxSize > MaxContentSize {
		maxSize = MaxContentSize
	}
	if len(p.Content) > maxSize {
		return ErrContentTooLarge
	}
	if p.ExpirationMinutes < MinExpirationMinutes || p.ExpirationMinutes > MaxExpirationMinutes {
		return ErrInvalidExpiration
	}
	if _, err := ParseContentType(string(p.ContentType)); err != nil {
		return err
	}
	if p.MaxAccess < 0 {
		return ErrInvalidMaxAccess
	}
	if len(p.Password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

type Stats struct {
	TotalClips       int        `json:"totalClips"`
	ActiveClips      int        `json:"activeClips"`
	ExpiredClips     int        `json:"expiredClips"`
	OldestClip       *time.Time `json:"oldestClipTimestamp"`
	TotalAccesses    int        `json:"totalAccesses"`
	DurableConnected bool       `json:"durableTierConnected"`
	FastTierCount    int        `json:"fastTierCount"`
	DurableTierCount int        `json:"durableTierCount"`
}
