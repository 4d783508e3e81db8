package auth

import (
	"net/http"
	"strings"
)

// DefaultAccessCookie is the cookie carrying the access token.
const DefaultAccessCookie = "ap_access"

const maxTokenLength = 4096

// Resolver extracts and verifies the access token of a request.
type Resolver struct {
	codec      *Codec
	cookieName string
}

// NewResolver creates a Resolver reading cookieName (DefaultAccessCookie
// when empty) and then the Authorization header.
func NewResolver(codec *Codec, cookieName string) *Resolver {
	if cookieName == "" {
		cookieName = DefaultAccessCookie
	}
	return &Resolver{codec: codec, cookieName: cookieName}
}

// Resolve returns the request's identity. The access cookie wins over a
// Bearer header. Any missing, malformed, expired or forged token yields
// false.
func (r *Resolver) Resolve(req *http.Request) (Identity, bool) {
	token := r.token(req)
	if token == "" || len(token) > maxTokenLength {
		return Identity{}, false
	}
	id, err := r.codec.VerifyAccess(token)
	if err != nil {
		return Identity{}, false
	}
	return id, true
}

func (r *Resolver) token(req *http.Request) string {
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := req.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
