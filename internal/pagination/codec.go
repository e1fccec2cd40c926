// Package pagination encodes the stateless control tokens attached to
// result messages.
//
// A page token is "<page>:<query>"; a delete token is
// "del:<channel_id>:<message_id>". When a signing key is configured every
// token carries a "|<tag>" suffix of 8 hex characters of HMAC-SHA256 over
// the payload.
package pagination

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTokenBytes is the largest token a chat callback can carry.
const MaxTokenBytes = 64

const (
	deletePrefix = "del:"
	tagSeparator = "|"
	tagHexLen    = 8
)

// ErrMalformedToken is returned when a token cannot be decoded.
var ErrMalformedToken = errors.New("malformed control token")

// PageToken requests one page of a query.
type PageToken struct {
	Page  int
	Query string
}

// DeleteToken requests deletion of a result message. Zero ids mean the
// message hosting the control.
type DeleteToken struct {
	ChannelID int64
	MessageID int64
}

// Codec encodes and decodes control tokens. The zero value produces
// unsigned tokens.
type Codec struct {
	key []byte
}

// NewCodec returns a Codec signing with key. An empty key disables tags.
func NewCodec(key string) *Codec {
	if key == "" {
		return &Codec{}
	}
	return &Codec{key: []byte(key)}
}

// Signed reports whether tokens carry an integrity tag.
func (c *Codec) Signed() bool {
	return len(c.key) > 0
}

// EncodePage returns the token for page of query. Queries too long for a
// callback are cut at a rune boundary.
func (c *Codec) EncodePage(page int, query string) string {
	head := strconv.Itoa(page) + ":"
	budget := MaxTokenBytes - len(head) - c.tagLen()
	return c.seal(head + truncate(query, budget))
}

// DecodePage parses a page token. The query is everything after the first
// colon, so queries may contain colons.
func (c *Codec) DecodePage(token string) (PageToken, error) {
	payload, err := c.open(token)
	if err != nil {
		return PageToken{}, err
	}

	pageStr, query, ok := strings.Cut(payload, ":")
	if !ok {
		return PageToken{}, fmt.Errorf("%w: missing separator", ErrMalformedToken)
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil {
		return PageToken{}, fmt.Errorf("%w: bad page %q", ErrMalformedToken, pageStr)
	}
	if page < 1 {
		return PageToken{}, fmt.Errorf("%w: page %d out of range", ErrMalformedToken, page)
	}
	return PageToken{Page: page, Query: query}, nil
}

// EncodeDelete returns the close token for a result message. Zero ids are
// left empty, for a message whose id is not known yet.
func (c *Codec) EncodeDelete(channelID, messageID int64) string {
	return c.seal(deletePrefix + formatID(channelID) + ":" + formatID(messageID))
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// IsDeleteToken reports whether token is a delete token. Check it before
// DecodePage.
func IsDeleteToken(token string) bool {
	return strings.HasPrefix(token, deletePrefix)
}

// DecodeDelete parses a delete token. Empty ids decode as zero.
func (c *Codec) DecodeDelete(token string) (DeleteToken, error) {
	payload, err := c.open(token)
	if err != nil {
		return DeleteToken{}, err
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 3 || parts[0]+":" != deletePrefix {
		return DeleteToken{}, fmt.Errorf("%w: want del:<channel>:<message>", ErrMalformedToken)
	}

	var dt DeleteToken
	if dt.ChannelID, err = parseID(parts[1]); err != nil {
		return DeleteToken{}, err
	}
	if dt.MessageID, err = parseID(parts[2]); err != nil {
		return DeleteToken{}, err
	}
	return dt, nil
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad id %q", ErrMalformedToken, s)
	}
	return id, nil
}

func (c *Codec) tagLen() int {
	if !c.Signed() {
		return 0
	}
	return len(tagSeparator) + tagHexLen
}

func (c *Codec) tag(payload string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))[:tagHexLen]
}

func (c *Codec) seal(payload string) string {
	if !c.Signed() {
		return payload
	}
	return payload + tagSeparator + c.tag(payload)
}

// open strips and verifies the tag of a signed token.
func (c *Codec) open(token string) (string, error) {
	if !c.Signed() {
		return token, nil
	}

	i := strings.LastIndex(token, tagSeparator)
	if i < 0 {
		return "", fmt.Errorf("%w: missing tag", ErrMalformedToken)
	}
	payload, tag := token[:i], token[i+len(tagSeparator):]
	if !hmac.Equal([]byte(tag), []byte(c.tag(payload))) {
		return "", fmt.Errorf("%w: bad tag", ErrMalformedToken)
	}
	return payload, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
