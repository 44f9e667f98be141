package main

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtExpiry        = 24 * time.Hour
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

var (
	errAdminDisabled   = oops.Code("ADMIN_DISABLED").Errorf("admin access is not configured")
	errBadCredentials  = oops.Code("ADMIN_BAD_CREDENTIALS").Errorf("invalid password")
	errTooManyAttempts = oops.Code("ADMIN_RATE_LIMITED").Errorf("too many login attempts, try again later")
	errInvalidToken    = oops.Code("ADMIN_INVALID_TOKEN").Errorf("invalid token")
)

// Admin guards the moderation endpoints. A single bcrypt-hashed
// password comes from config; sessions are short-lived JWTs signed
// with a secret persisted in the settings table so tokens survive
// restarts.
type Admin struct {
	passHash  string // bcrypt hash, "" disables the admin surface
	jwtSecret []byte

	// Rate limiting for login attempts (address -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAdmin creates an Admin. db may be nil, in which case the signing
// secret is ephemeral.
func NewAdmin(passHash string, db *DB) *Admin {
	return &Admin{
		passHash:  passHash,
		jwtSecret: loadOrCreateSecret(db),
		rateMap:   make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the JWT secret from the settings table, or
// generates and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			slog.Warn("could not persist JWT secret", "err", err)
		}
	}
	return secret
}

// Login checks the admin password and returns a session token
func (a *Admin) Login(password, addr string) (string, error) {
	if a.passHash == "" {
		return "", errAdminDisabled
	}
	if !a.checkRate(addr) {
		return "", errTooManyAttempts
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passHash), []byte(password)); err != nil {
		return "", errBadCredentials
	}

	claims := jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(jwtExpiry).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateToken checks a session token
func (a *Admin) ValidateToken(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return oops.Code("ADMIN_INVALID_TOKEN").Wrap(err)
	}
	if !token.Valid {
		return errInvalidToken
	}
	return nil
}

// Middleware rejects requests without a valid bearer token
func (a *Admin) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || a.ValidateToken(token) != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Admin) checkRate(addr string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[addr]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[addr] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}
