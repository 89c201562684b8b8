package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestClip_Expired(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Clip{CreatedAt: created, ExpiresAt: created.Add(time.Minute)}

	if c.Expired(created.Add(59 * time.Second)) {
		t.Error("clip should not be expired before ExpiresAt")
	}
	if c.Expired(created.Add(time.Minute)) {
		t.Error("clip should not be expired exactly at ExpiresAt")
	}
	if !c.Expired(created.Add(61 * time.Second)) {
		t.Error("clip should be expired after ExpiresAt")
	}
}

func TestClip_Remaining(t *testing.T) {
	now := time.Now()
	c := &Clip{ExpiresAt: now.Add(1500 * time.Millisecond)}
	if got := c.Remaining(now); got != 2*time.Second {
		t.Errorf("Remaining rounds up: got %v, want 2s", got)
	}
	if got := c.Remaining(now.Add(time.Hour)); got != 0 {
		t.Errorf("Remaining after expiry: got %v, want 0", got)
	}
}

func TestClip_AccessExhausted(t *testing.T) {
	c := &Clip{MaxAccess: 2, AccessCount: 1}
	if c.AccessExhausted() {
		t.Error("1 of 2 should not be exhausted")
	}
	c.AccessCount = 2
	if !c.AccessExhausted() {
		t.Error("2 of 2 should be exhausted")
	}
	unlimited := &Clip{AccessCount: 1000}
	if unlimited.AccessExhausted() {
		t.Error("MaxAccess 0 means unlimited")
	}
}

func TestClip_JSONTimestamps(t *testing.T) {
	created := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	c := Clip{
		ID:          "0123456789abcdef0123456789abcdef",
		Content:     "hi",
		ContentType: ContentCode,
		CreatedAt:   created,
		ExpiresAt:   created.Add(time.Hour),
		MaxAccess:   3,
	}
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"createdAt":"2026-05-06T07:08:09Z"`) {
		t.Errorf("createdAt not ISO-8601: %s", data)
	}

	var got Clip
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.ExpiresAt.Equal(c.ExpiresAt) {
		t.Errorf("ExpiresAt mismatch: got %v, want %v", got.ExpiresAt, c.ExpiresAt)
	}
	if got.Expired(created.Add(30 * time.Minute)) {
		t.Error("decoded clip compared as expired too early")
	}
}

func TestParseContentType(t *testing.T) {
	tests := []struct {
		in      string
		want    ContentType
		wantErr bool
	}{
		{"", ContentText, false},
		{"text", ContentText, false},
		{"URL", ContentURL, false},
		{" code ", ContentCode, false},
		{"image", "", true},
	}
	for _, tt := range tests {
		got, err := ParseContentType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseContentType(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseContentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateParams_Validate(t *testing.T) {
	valid := func() CreateParams {
		return CreateParams{Content: "hello", ContentType: ContentText, ExpirationMinutes: 60}
	}
	tests := []struct {
		name   string
		mutate func(p *CreateParams)
		want   error
	}{
		{"ok", func(p *CreateParams) {}, nil},
		{"empty content", func(p *CreateParams) { p.Content = "" }, ErrContentRequired},
		{"too large", func(p *CreateParams) { p.Content = strings.Repeat("a", MaxContentSize+1) }, ErrContentTooLarge},
		{"max size", func(p *CreateParams) { p.Content = strings.Repeat("a", MaxContentSize) }, nil},
		{"zero minutes", func(p *CreateParams) { p.ExpirationMinutes = 0 }, ErrInvalidExpiration},
		{"too many minutes", func(p *CreateParams) { p.ExpirationMinutes = MaxExpirationMinutes + 1 }, ErrInvalidExpiration},
		{"one week", func(p *CreateParams) { p.ExpirationMinutes = MaxExpirationMinutes }, nil},
		{"bad type", func(p *CreateParams) { p.ContentType = "pdf" }, ErrInvalidContentType},
		{"negative max access", func(p *CreateParams) { p.MaxAccess = -1 }, ErrInvalidMaxAccess},
		{"long password", func(p *CreateParams) { p.Password = strings.Repeat("p", MaxPasswordLength+1) }, ErrPasswordTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate(MaxContentSize)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	if got := Status(ErrClipNotFound); got != 404 {
		t.Errorf("Status(ErrClipNotFound) = %d", got)
	}
	if got := Status(errors.New("boom")); got != 500 {
		t.Errorf("Status(unknown) = %d", got)
	}
	if resp := ToResp(errors.New("boom")); resp.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("ToResp(unknown) code = %s", resp.Error.Code)
	}
}
