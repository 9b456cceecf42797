package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/jw6ventures/campuscal/internal/config"
)

const (
	sessionTTL = 24 * time.Hour
	stateTTL   = 10 * time.Minute
)

type sessionValue struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
	Expires   int64  `json:"exp"`
}

type stateValue struct {
	State   string `json:"state"`
	Nonce   string `json:"nonce"`
	Expires int64  `json:"exp"`
}

// SessionManager manages web UI sessions.
type SessionManager struct {
	cookieName string
	stateName  string
	codec      *securecookie.SecureCookie
	secure     bool
	now        func() time.Time
}

func NewSessionManager(cfg *config.Config) *SessionManager {
	hash := sha256.Sum256([]byte(cfg.Session.Secret))
	hashKey := hash[:]

	// Derive an AES-256 sized block key to avoid invalid key length errors.
	blockKey := hash[:]
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &SessionManager{
		cookieName: "campuscal_session",
		stateName:  "campuscal_oauth_state",
		codec:      sc,
		secure:     secure,
		now:        time.Now,
	}
}

// Issue starts a new browser session for userID and returns its ID.
func (m *SessionManager) Issue(w http.ResponseWriter, userID string) (string, error) {
	expires := m.now().Add(sessionTTL)
	value := sessionValue{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Expires:   expires.Unix(),
	}

	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return value.SessionID, nil
}

// Clear removes the session cookie.
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})
}

// Current extracts the session and user IDs from the request if the cookie
// is valid and unexpired.
func (m *SessionManager) Current(r *http.Request) (sessionID, userID string, ok bool) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", "", false
	}

	var value sessionValue
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return "", "", false
	}
	if value.SessionID == "" || value.UserID == "" {
		return "", "", false
	}
	if time.Unix(value.Expires, 0).Before(m.now()) {
		return "", "", false
	}
	return value.SessionID, value.UserID, true
}

// IssueState stores the OAuth state and nonce for the callback to check.
func (m *SessionManager) IssueState(w http.ResponseWriter, state, nonce string) error {
	expires := m.now().Add(stateTTL)
	encoded, err := m.codec.Encode(m.stateName, stateValue{State: state, Nonce: nonce, Expires: expires.Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.stateName,
		Value:    encoded,
		Path:     "/auth",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ConsumeState reads and clears the OAuth state cookie.
func (m *SessionManager) ConsumeState(w http.ResponseWriter, r *http.Request) (state, nonce string, ok bool) {
	c, err := r.Cookie(m.stateName)
	if err != nil {
		return "", "", false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.stateName,
		Value:    "",
		Path:     "/auth",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
	})

	var value stateValue
	if err := m.codec.Decode(m.stateName, c.Value, &value); err != nil {
		return "", "", false
	}
	if value.State == "" || time.Unix(value.Expires, 0).Before(m.now()) {
		return "", "", false
	}
	return value.State, value.Nonce, true
}
