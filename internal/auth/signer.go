package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CookieSigner はセッションCookieの値にSESSION_SECRETによる
// HMAC-SHA256署名を付与・検証する。Cookie値は "<sessionID>.<signature>" 形式。
// セッション自体はサーバー側に保存されるため、署名はCookie値の
// 改ざんと総当たりによるセッションID探索のコストを上げる目的で付与する。
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner はCookieSignerを生成する。
func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret)}
}

// Sign はセッションIDに署名を付与したCookie値を返す。
func (s *CookieSigner) Sign(sessionID string) string {
	return sessionID + "." + s.signature(sessionID)
}

// Verify はCookie値の署名を検証し、有効であればセッションIDを返す。
func (s *CookieSigner) Verify(value string) (string, bool) {
	i := strings.LastIndex(value, ".")
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	sessionID, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(s.signature(sessionID))) {
		return "", false
	}
	return sessionID, true
}

func (s *CookieSigner) signature(sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
