package web

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const SessionCookie = "__session"

var ErrNoSession = errors.New("no session")

type SessionUser struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Picture *string `json:"picture,omitempty"`
}

type Session struct {
	Token string      `json:"token"`
	User  SessionUser `json:"user"`
}

// SessionStore keeps the session in an authenticated, encrypted cookie.
type SessionStore struct {
	codec  *securecookie.SecureCookie
	maxAge time.Duration
	secure bool
}

// NewSessionStore derives the HMAC and AES keys from one secret.
func NewSessionStore(secret string, maxAge time.Duration, secure bool) (*SessionStore, error) {
	if secret == "" {
		return nil, errors.New("session secret is required")
	}
	hashKey := sha512.Sum512([]byte("hash:" + secret))
	blockKey := sha256.Sum256([]byte("block:" + secret))

	codec := securecookie.New(hashKey[:], blockKey[:])
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(maxAge.Seconds()))

	return &SessionStore{codec: codec, maxAge: maxAge, secure: secure}, nil
}

func (s *SessionStore) Load(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return Session{}, ErrNoSession
	}
	var session Session
	if err := s.codec.Decode(SessionCookie, cookie.Value, &session); err != nil {
		return Session{}, ErrNoSession
	}
	if session.Token == "" {
		return Session{}, ErrNoSession
	}
	return session, nil
}

func (s *SessionStore) Save(w http.ResponseWriter, session Session) error {
	value, err := s.codec.Encode(SessionCookie, session)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(value, int(s.maxAge.Seconds())))
	return nil
}

func (s *SessionStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie("", -1))
}

func (s *SessionStore) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
