package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

// DefaultTokenDir is where the auth command stores session tokens unless
// configured otherwise.
func DefaultTokenDir() string {
	return filepath.Join(xdg.DataHome, "bookcal", "sessions")
}

// TokenPath returns the token file for an account, e.g. token-personal.json.
func TokenPath(dir, account string) string {
	return filepath.Join(dir, fmt.Sprintf("token-%s.json", account))
}

// FileStore serves sessions from token files written by the auth command.
// The session cookie names the account.
type FileStore struct {
	dir        string
	cookieName string
	oauth      *oauth2.Config // nil disables refresh
	logger     *slog.Logger
}

// NewFileStore creates a FileStore reading tokens from dir.
func NewFileStore(logger *slog.Logger, dir, cookieName string, oauthConfig *oauth2.Config) *FileStore {
	return &FileStore{dir: dir, cookieName: cookieName, oauth: oauthConfig, logger: logger}
}

// GetSession implements Provider. An expired token that carries a refresh
// token is refreshed and written back.
func (s *FileStore) GetSession(r *http.Request) (*Session, error) {
	account := sessionID(r, s.cookieName)
	if account == "" {
		return nil, nil
	}

	path := TokenPath(s.dir, account)
	token, err := TokenFromFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not load token for account %s: %w", account, err)
	}

	if !token.Valid() && token.RefreshToken != "" && s.oauth != nil {
		refreshed, err := s.oauth.TokenSource(r.Context(), token).Token()
		if err != nil {
			// A revoked or expired refresh token means the caller must sign in again.
			s.logger.Warn("Token refresh failed", "account", account, "error", err)
			return nil, nil
		}
		if err := SaveToken(path, refreshed); err != nil {
			s.logger.Error("Failed to save refreshed token", "account", account, "error", err)
		}
		token = refreshed
	}

	return &Session{Subject: account, AccessToken: token.AccessToken, Expiry: token.Expiry}, nil
}

// SaveToken saves a token to a file path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// TokenFromFile retrieves a token from a local file.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return tok, nil
}
