package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const credFileName = "credentials.json"

// Session is what scopes currentUser: the username and the opaque token
// the OAuth callback returned. It is passed explicitly to the client.
type Session struct {
	Username  string     `json:"username"`
	Token     string     `json:"token"`
	Source    string     `json:"source"`     // "env" | "file"
	CreatedAt time.Time  `json:"created_at"` // when we saved to file
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Session) Valid() bool { return s != nil && s.Username != "" && s.Token != "" }

func credsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, ".pkgradar"), nil
}

func CredentialsPath() (string, error) {
	dir, err := credsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credFileName), nil
}

// LoadSession returns the saved session, or nil when nobody is logged in.
// PKGRADAR_USERNAME and PKGRADAR_TOKEN override the file.
func LoadSession() (*Session, error) {
	user := strings.TrimSpace(os.Getenv("PKGRADAR_USERNAME"))
	tok := strings.TrimSpace(os.Getenv("PKGRADAR_TOKEN"))
	if user != "" && tok != "" {
		return &Session{Username: user, Token: stripBearer(tok), Source: "env"}, nil
	}

	p, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	s.Token = stripBearer(s.Token)
	if s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

func SaveSession(s Session) error {
	s.Username = strings.TrimSpace(s.Username)
	s.Token = stripBearer(strings.TrimSpace(s.Token))
	if !s.Valid() {
		return errors.New("username and token required")
	}
	dir, err := credsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	s.Source = "file"
	s.CreatedAt = time.Now()
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	p, _ := CredentialsPath()
	// owner-only
	if err := os.WriteFile(p, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func ClearSession() error {
	p, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

func stripBearer(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "bearer ") {
		return strings.TrimSpace(s[7:])
	}
	return s
}
