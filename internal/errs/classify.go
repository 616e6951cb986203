package errs

import "strings"

// rateLimitSubstrings are matched case-insensitively against an SMTP
// response's message text, per spec §4.2.
var rateLimitSubstrings = []string{
	"rate limit",
	"too many",
	"quota",
	"exceeded",
	"temporarily deferred",
}

func rateLimitPhrase(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range rateLimitSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ClassifySMTP turns an SMTP response code plus the raw response text into a
// classified *Error, implementing the table of spec §4.2:
//
//	421                    -> SmtpTransient, triggers cooldown
//	450, 451, 452          -> SmtpTransient
//	550, 551, 552          -> SmtpPermanent
//	other 4xx              -> SmtpTransient
//	other 5xx              -> SmtpTransient (spec treats only 550/551/552 as permanent)
//	message matches a rate-limit phrase -> SmtpTransient (cooldown if 421-like)
//	no code / unrecognized -> Transport
func ClassifySMTP(code int, raw error) *Error {
	switch code {
	case 421:
		return New(KindSmtpTransient, code, raw)
	case 450, 451, 452:
		return New(KindSmtpTransient, code, raw)
	case 550, 551, 552:
		return New(KindSmtpPermanent, code, raw)
	}

	if code >= 400 && code < 600 {
		return New(KindSmtpTransient, code, raw)
	}

	if rateLimitPhrase(raw) {
		return New(KindSmtpTransient, code, raw)
	}

	return New(KindTransport, code, raw)
}

// ClassifyTransport wraps a non-SMTP transport failure (dial timeout, TLS
// handshake error, connection reset) as a retryable Transport error.
func ClassifyTransport(cause error) *Error {
	return New(KindTransport, 0, cause)
}

// ClassifyInternal wraps a bug/invariant-violation failure that should be
// logged and dead-lettered without retry.
func ClassifyInternal(cause error) *Error {
	return New(KindInternal, 0, cause)
}
