package ratelimit

// DomainLimitTable maps a lower-cased recipient domain to its per-minute
// send ceiling. "default" is used for any domain not present.
type DomainLimitTable map[string]int

// DefaultDomainLimitTable returns the provider thresholds of spec §4.1.
func DefaultDomainLimitTable() DomainLimitTable {
	return DomainLimitTable{
		"gmail.com":      15,
		"googlemail.com": 15,
		"outlook.com":    20,
		"hotmail.com":    20,
		"live.com":       20,
		"msn.com":        20,
		"yahoo.com":      25,
		"aol.com":        25,
		"default":        30,
	}
}

// PerMinuteLimit returns the configured ceiling for domain, falling back to
// the table's "default" entry.
func (t DomainLimitTable) PerMinuteLimit(domain string) int {
	if limit, ok := t[domain]; ok {
		return limit
	}
	return t["default"]
}

// DefaultGlobalPerSecondLimit is GLOBAL_PER_SEC_LIMIT from spec §4.1.
const DefaultGlobalPerSecondLimit = 35
