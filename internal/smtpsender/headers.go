package smtpsender

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
)

const messageIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newMessageID builds a Message-ID of the form
// <{unix_ms}.{12 random url-safe alphanumerics}@{senderDomain}>, unique per
// attempt per spec §4.2.
func newMessageID(senderDomain string, now time.Time) (string, error) {
	suffix, err := randomAlphanumeric(12)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<%d.%s@%s>", now.UnixMilli(), suffix, senderDomain), nil
}

func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(messageIDAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = messageIDAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// jitteredDate returns now perturbed by a uniform random offset in
// [-30s, +30s], formatted per RFC-2822 in UTC, per spec §4.2.
func jitteredDate(now time.Time) (time.Time, string, error) {
	offsetMs, err := rand.Int(rand.Reader, big.NewInt(60_001))
	if err != nil {
		return time.Time{}, "", err
	}
	jittered := now.Add(time.Duration(offsetMs.Int64()-30_000) * time.Millisecond).UTC()
	return jittered, jittered.Format(time.RFC1123Z), nil
}

// Headers are the assembled envelope fields of spec §4.2, ready to be
// serialized into a raw RFC-5322 message.
type Headers struct {
	MessageID         string
	Date              string
	From              string
	To                string
	Subject           string
	MIMEVersion       string
	XMailer           string
	ListUnsubscribe   string
	ListUnsubscribePost string
	ReturnPath        string
	ReplyTo           string
	Custom            map[string]string
}

const defaultXMailer = "bulkmailer"

// BuildHeaders assembles the full header set for one send attempt.
func BuildHeaders(opts HeaderOptions, now time.Time) (Headers, error) {
	msgID, err := newMessageID(opts.SenderDomain, now)
	if err != nil {
		return Headers{}, err
	}
	_, dateStr, err := jitteredDate(now)
	if err != nil {
		return Headers{}, err
	}

	h := Headers{
		MessageID:   msgID,
		Date:        dateStr,
		From:        opts.From,
		To:          opts.To,
		Subject:     opts.Subject,
		MIMEVersion: "1.0",
		XMailer:     defaultXMailer,
		ReturnPath:  opts.ReturnPath,
		ReplyTo:     opts.ReplyTo,
		Custom:      opts.CustomHeaders,
	}
	if opts.ListUnsubscribe != "" {
		h.ListUnsubscribe = opts.ListUnsubscribe
		h.ListUnsubscribePost = "List-Unsubscribe=One-Click"
	}
	return h, nil
}

// HeaderOptions carries the per-send, configuration-derived inputs to
// BuildHeaders.
type HeaderOptions struct {
	SenderDomain    string
	From            string
	To              string
	Subject         string
	ReturnPath      string
	ReplyTo         string
	ListUnsubscribe string
	CustomHeaders   map[string]string
}

var (
	tagStripper      = regexp.MustCompile(`(?is)<style.*?</style>|<script.*?</script>`)
	anyTagStripper   = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

const plainTextTruncateLen = 1000

// PlainTextFromHTML derives a plain-text alternative from HTML body by
// stripping style/script blocks and remaining tags, collapsing whitespace,
// and truncating to 1000 chars, per spec §4.2.
func PlainTextFromHTML(html string) string {
	stripped := tagStripper.ReplaceAllString(html, "")
	stripped = anyTagStripper.ReplaceAllString(stripped, " ")
	stripped = whitespaceRegexp.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)
	if runes := []rune(stripped); len(runes) > plainTextTruncateLen {
		stripped = string(runes[:plainTextTruncateLen])
	}
	return stripped
}
