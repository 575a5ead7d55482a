package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtAlgorithm = jwt.SigningMethodHS256

// DefaultRateLimit is the daily request allowance of a new API key
const DefaultRateLimit = 10000

// ErrKeyRevoked is returned for a correctly signed key an admin revoked
var ErrKeyRevoked = errors.New("api key revoked")

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator issues admin tokens and signs API keys
type Authenticator struct {
	JWTSecret    []byte
	MasterSecret []byte
	TokenTTL     time.Duration
	BcryptCost   int
	Now          func() time.Time
}

// New creates an authenticator from the configured secrets
func New(jwtSecret, masterSecret string) *Authenticator {
	return &Authenticator{
		JWTSecret:    []byte(jwtSecret),
		MasterSecret: []byte(masterSecret),
		TokenTTL:     24 * time.Hour,
		BcryptCost:   14,
		Now:          time.Now,
	}
}

// HashPassword hashes a password using bcrypt
func (a *Authenticator) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), a.BcryptCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for an admin
func (a *Authenticator) CreateToken(username string) (string, error) {
	now := a.Now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(a.JWTSecret)
}

// VerifyToken verifies a JWT token
func (a *Authenticator) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, errors.New("unexpected signing method")
		}
		return a.JWTSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

func (a *Authenticator) sign(userID string) string {
	h := hmac.New(sha256.New, a.MasterSecret)
	h.Write([]byte(userID))
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateHMACKey creates a signed API key using HMAC-SHA256
func (a *Authenticator) GenerateHMACKey(userID string) string {
	return userID + "." + a.sign(userID)
}

// VerifyHMACKey validates an HMAC-signed API key and returns its user id
func (a *Authenticator) VerifyHMACKey(key string) (string, error) {
	idx := strings.LastIndex(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", errors.New("invalid key format")
	}

	userID := key[:idx]
	providedSignature := key[idx+1:]

	// Use constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(providedSignature), []byte(a.sign(userID))) {
		return "", errors.New("invalid signature")
	}

	return userID, nil
}

// KeyPreview masks a key for listings, e.g. "roo...9f3a"
func KeyPreview(key string) string {
	if len(key) > 8 {
		return key[:3] + "..." + key[len(key)-4:]
	}
	return "****"
}

// TouchAPIKey loads the record of a verified key, creating it on first use,
// and stamps LastUsed. A revoked key returns ErrKeyRevoked.
func (a *Authenticator) TouchAPIKey(db *gorm.DB, key, userID string) (*database.APIKey, error) {
	var apiKey database.APIKey
	err := db.Unscoped().Where(&database.APIKey{Key: key}).First(&apiKey).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		apiKey = database.APIKey{
			Key:        key,
			Name:       userID,
			KeyPreview: KeyPreview(key),
			RateLimit:  DefaultRateLimit,
		}
		if err := db.Create(&apiKey).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case apiKey.DeletedAt.Valid:
		return nil, ErrKeyRevoked
	}

	now := a.Now()
	apiKey.LastUsed = &now
	if err := db.Model(&apiKey).Update("last_used", now).Error; err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// EnsureAdminExists creates the configured admin when no admin exists yet
func (a *Authenticator) EnsureAdminExists(db *gorm.DB, username, password string, logger *slog.Logger) error {
	var count int64
	if err := db.Model(&database.MasterUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("admin username and password are required")
	}

	hash, err := a.HashPassword(password)
	if err != nil {
		return err
	}

	user := database.MasterUser{
		Username:     username,
		PasswordHash: hash,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}
	if logger != nil {
		logger.Info("default admin user created", "username", username)
	}
	return nil
}
