package queueadapter

import (
	"encoding/json"
	"fmt"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// ParseError wraps a malformed-payload failure; the Drainer routes these
// straight to dead-letter per spec §4.3.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("parse: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// body is the recognized JSON shape of spec §6. Unknown fields are
// preserved into metadata via json.RawMessage round-tripping in ParseBody.
type body struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
	HTML        string `json:"html"`
	Text        string `json:"text"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
}

// ParseBody implements spec §4.3/§6's attrs-then-body precedence:
//
//	recipient := attrs.to || body.to
//	subject   := attrs.subject || body.subject
//	body      := body.content || body.html || body.text || body.body
//	content_kind := body.contentType || (body.html ? html : text)
func ParseBody(rawBody string, attrs map[string]string) (*domain.SendRequest, error) {
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rawBody), &decoded); err != nil {
		return nil, &ParseError{Reason: "invalid JSON body", Cause: err}
	}

	var b body
	if err := json.Unmarshal([]byte(rawBody), &b); err != nil {
		return nil, &ParseError{Reason: "recognized fields did not decode", Cause: err}
	}

	recipient := attrs["to"]
	if recipient == "" {
		recipient = b.To
	}
	if recipient == "" {
		return nil, &ParseError{Reason: "missing recipient"}
	}

	subject := attrs["subject"]
	if subject == "" {
		subject = b.Subject
	}

	content := firstNonEmpty(b.Content, b.HTML, b.Text, b.Body)
	if content == "" {
		return nil, &ParseError{Reason: "missing body content"}
	}

	contentKind := domain.ContentText
	switch {
	case b.ContentType != "":
		contentKind = domain.ContentKind(b.ContentType)
	case b.HTML != "":
		contentKind = domain.ContentHTML
	}

	metadata := make(map[string]any, len(decoded))
	for k, v := range decoded {
		if isRecognizedField(k) {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			metadata[k] = val
		}
	}

	return &domain.SendRequest{
		Recipient:   recipient,
		Subject:     subject,
		Body:        content,
		ContentKind: contentKind,
		Metadata:    metadata,
	}, nil
}

func isRecognizedField(k string) bool {
	switch k {
	case "to", "subject", "content", "html", "text", "body", "contentType":
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseMessage parses a raw queue Message into a SendRequest, attaching the
// fields derived at fetch time per spec §3.
func parseMessage(msg Message) (*domain.SendRequest, error) {
	req, err := ParseBody(msg.Body, msg.Attributes)
	if err != nil {
		return nil, err
	}
	req.ReceiptToken = msg.ReceiptToken
	req.QueueMessageID = msg.QueueMessageID
	return req, nil
}
