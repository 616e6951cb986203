package smtpsender

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// buildMessage serializes Headers plus the request body into a complete
// RFC-5322 message. HTML bodies are always sent multipart/alternative with a
// synthesized plain-text part, per spec §4.2.
func buildMessage(h Headers, req *domain.SendRequest) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "Message-ID", h.MessageID)
	writeHeader(&buf, "Date", h.Date)
	writeHeader(&buf, "From", h.From)
	writeHeader(&buf, "To", h.To)
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("UTF-8", h.Subject))
	writeHeader(&buf, "MIME-Version", h.MIMEVersion)
	writeHeader(&buf, "X-Mailer", h.XMailer)
	if h.ReturnPath != "" {
		writeHeader(&buf, "Return-Path", h.ReturnPath)
	}
	if h.ReplyTo != "" {
		writeHeader(&buf, "Reply-To", h.ReplyTo)
	}
	if h.ListUnsubscribe != "" {
		writeHeader(&buf, "List-Unsubscribe", h.ListUnsubscribe)
		writeHeader(&buf, "List-Unsubscribe-Post", h.ListUnsubscribePost)
	}
	for k, v := range h.Custom {
		writeHeader(&buf, k, v)
	}

	if req.ContentKind == domain.ContentHTML {
		return buildMultipart(&buf, req.Body)
	}

	writeHeader(&buf, "Content-Type", "text/plain; charset=UTF-8")
	buf.WriteString("\r\n")
	buf.WriteString(req.Body)
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, value)
}

func buildMultipart(headerBuf *bytes.Buffer, htmlBody string) ([]byte, error) {
	var bodyBuf bytes.Buffer
	writer := multipart.NewWriter(&bodyBuf)

	writeHeader(headerBuf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", writer.Boundary()))
	headerBuf.WriteString("\r\n")

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	textQP := quotedprintable.NewWriter(textPart)
	if _, err := textQP.Write([]byte(PlainTextFromHTML(htmlBody))); err != nil {
		return nil, err
	}
	if err := textQP.Close(); err != nil {
		return nil, err
	}

	htmlPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	htmlQP := quotedprintable.NewWriter(htmlPart)
	if _, err := htmlQP.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err := htmlQP.Close(); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	headerBuf.Write(bodyBuf.Bytes())
	return headerBuf.Bytes(), nil
}
