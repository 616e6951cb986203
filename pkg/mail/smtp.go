// Package mail provides the pooled SMTP transport and small address/config
// helpers shared by the delivery engine.
package mail

import "net/mail"

// Config identifies the outbound SMTP account used to populate the From
// header.
type Config struct {
	FromEmail string
	FromName  string
}

// FromHeader renders the configured From header value: "Name <addr>" when a
// display name is set, the bare address otherwise.
func (c Config) FromHeader() string {
	if c.FromName == "" {
		return c.FromEmail
	}
	addr := mail.Address{Name: c.FromName, Address: c.FromEmail}
	return addr.String()
}
