package config

import (
	"sync"
	"time"
)

const defaultJWTSecret = "your-secret-key-change-this-in-production"

var (
	jwtMu         sync.RWMutex
	jwtSecret     []byte
	JWTExpiration = 24 * time.Hour
)

func init() {
	SetJWTSecret(getEnv("JWT_SECRET", defaultJWTSecret))
}

// SetJWTSecret replaces the HMAC key used to verify bearer tokens.
func SetJWTSecret(secret string) {
	if secret == "" {
		secret = defaultJWTSecret
	}
	jwtMu.Lock()
	jwtSecret = []byte(secret)
	jwtMu.Unlock()
}

func JWTSecret() []byte {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	return jwtSecret
}
