package botdetect

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"
)

// CookieName is the cookie carrying a solved challenge token.
const CookieName = "l7waf_bot"

// payload is the fixed-layout structure HMAC-signed into a challenge
// token: client_ip length-prefixed, issued_at_unix, a 16-byte nonce, and
// the difficulty the client must solve against.
type payload struct {
	clientIP  string
	issuedAt  int64
	nonce     [16]byte
	difficulty int
}

func (p payload) encode() []byte {
	ipBytes := []byte(p.clientIP)
	buf := make([]byte, 0, 2+len(ipBytes)+8+16+4)
	buf = appendUint16(buf, uint16(len(ipBytes)))
	buf = append(buf, ipBytes...)
	buf = appendInt64(buf, p.issuedAt)
	buf = append(buf, p.nonce[:]...)
	buf = appendUint32(buf, uint32(p.difficulty))
	return buf
}

func decodePayload(b []byte) (payload, bool) {
	var p payload
	if len(b) < 2 {
		return p, false
	}
	ipLen := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < ipLen+8+16+4 {
		return p, false
	}
	p.clientIP = string(b[:ipLen])
	b = b[ipLen:]
	p.issuedAt = int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	copy(p.nonce[:], b[:16])
	b = b[16:]
	p.difficulty = int(binary.BigEndian.Uint32(b[:4]))
	return p, true
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, v)
	return append(buf, tmp...)
}

func appendInt64(buf []byte, v int64) []byte {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint64(tmp, uint64(v))
	return append(buf, tmp...)
}

// Issuer mints and verifies proof-of-work challenge tokens, tracking
// which tokens have already been credited toward challenges_solved so
// a replayed solve within TTL doesn't double-count.
type Issuer struct {
	secret     []byte
	difficulty int
	ttl        time.Duration

	mu     sync.Mutex
	solved map[string]struct{}
}

// NewIssuer builds an Issuer with the given HMAC secret, PoW difficulty
// (leading zero bits required), and token time-to-live.
func NewIssuer(secret string, difficulty int, ttl time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		difficulty: difficulty,
		ttl:        ttl,
		solved:     make(map[string]struct{}),
	}
}

// Mint issues a new token bound to clientIP, opaque to the client:
// base64url(payload) "." base64url(HMAC_SHA256(secret, payload)).
func (iss *Issuer) Mint(clientIP string) (token string, difficulty int) {
	var nonce [16]byte
	_, _ = rand.Read(nonce[:])

	p := payload{
		clientIP:   clientIP,
		issuedAt:   time.Now().Unix(),
		nonce:      nonce,
		difficulty: iss.difficulty,
	}
	raw := p.encode()
	mac := hmac.New(sha256.New, iss.secret)
	mac.Write(raw)
	sig := mac.Sum(nil)

	token = b64(raw) + "." + b64(sig)
	return token, iss.difficulty
}

// Verify checks the token's HMAC, TTL, client-IP binding, and PoW answer.
// A verified token is idempotent: re-verifying the same token within TTL
// still succeeds, but challenges_solved is only incremented on the first
// successful verification (firstSolve reports that transition).
func (iss *Issuer) Verify(token, answer, clientIP string) (ok bool, firstSolve bool) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return false, false
	}
	// Strict decoding rejects non-zero padding bits, so no altered character
	// can decode to the same bytes as the original token.
	raw, err := base64.RawURLEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		return false, false
	}
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		return false, false
	}

	mac := hmac.New(sha256.New, iss.secret)
	mac.Write(raw)
	expected := mac.Sum(nil)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return false, false
	}

	p, okDecode := decodePayload(raw)
	if !okDecode {
		return false, false
	}
	if p.clientIP != clientIP {
		return false, false
	}
	if time.Since(time.Unix(p.issuedAt, 0)) > iss.ttl {
		return false, false
	}
	if !solvesPoW(token, answer, p.difficulty) {
		return false, false
	}

	iss.mu.Lock()
	_, already := iss.solved[token]
	if !already {
		iss.solved[token] = struct{}{}
	}
	iss.mu.Unlock()

	return true, !already
}

// ParseCookie splits a l7waf_bot cookie value of the form
// "base64url(payload).base64url(hmac).answer" into the opaque token
// ("base64url(payload).base64url(hmac)") and the trailing answer,
// splitting on the last '.' since the token itself contains one.
func ParseCookie(value string) (token, answer string, ok bool) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

// solvesPoW checks that SHA-256(token || answer) has at least difficulty
// leading zero bits, where token is the full opaque token string handed
// to the client.
func solvesPoW(token, answer string, difficulty int) bool {
	sum := sha256.Sum256([]byte(token + answer))
	return leadingZeroBits(sum[:]) >= difficulty
}

func leadingZeroBits(b []byte) int {
	count := 0
	for _, by := range b {
		if by == 0 {
			count += 8
			continue
		}
		for i := 7; i >= 0; i-- {
			if by&(1<<uint(i)) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// ChallengePage renders the HTML/JS page embedding (token, difficulty)
// that the client's browser executes to find a solving answer.
func ChallengePage(token string, difficulty int) string {
	return fmt.Sprintf(challengeHTMLTemplate, token, difficulty)
}

const challengeHTMLTemplate = `<!DOCTYPE html>
<html><head><title>Just a moment...</title></head>
<body>
<script>
async function solve(token, difficulty) {
  const enc = new TextEncoder();
  for (let i = 0; ; i++) {
    const answer = i.toString(36);
    const data = enc.encode(token + answer);
    const digest = await crypto.subtle.digest('SHA-256', data);
    const bytes = new Uint8Array(digest);
    let zeros = 0;
    outer:
    for (const b of bytes) {
      if (b === 0) { zeros += 8; continue; }
      for (let bit = 7; bit >= 0; bit--) {
        if ((b & (1 << bit)) !== 0) break outer;
        zeros++;
      }
      break;
    }
    if (zeros >= difficulty) {
      document.cookie = "l7waf_bot=" + token + "." + answer + "; path=/";
      location.reload();
      return;
    }
  }
}
solve("%s", %d);
</script>
<noscript>JavaScript is required to continue.</noscript>
</body></html>`
