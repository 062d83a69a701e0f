package scalar

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// hostnamePattern accepts dotted DNS labels with an optional trailing dot.
// Labels may not begin with '-'.
var hostnamePattern = regexp.MustCompile(
	`^(?:(?:xn--)?(?:[a-z0-9_][a-z0-9_-]{0,60})?[a-z0-9]\.)*` +
		`(?:xn--)?(?:[a-z0-9-]{1,61}|[a-z0-9-]{1,30}\.[a-z]{2,})\.?$`)

// ValidHostname reports whether host is a syntactically valid DNS name.
func ValidHostname(host string) bool {
	return hostnamePattern.MatchString(host)
}

// MX is a mail exchanger: priority/hostname.
type MX struct {
	Priority int
	Host     string
}

// ParseMX parses "priority/hostname".
func ParseMX(text string) (MX, error) {
	parts := strings.Split(text, "/")
	if len(parts) != 2 {
		return MX{}, fmt.Errorf("expected priority/hostname")
	}
	priority, err := strconv.Atoi(parts[0])
	if err != nil || priority < 0 {
		return MX{}, fmt.Errorf("invalid MX priority %q", parts[0])
	}
	if !ValidHostname(parts[1]) {
		return MX{}, fmt.Errorf("invalid MX host %q", parts[1])
	}
	return MX{Priority: priority, Host: parts[1]}, nil
}

func (m MX) String() string {
	return fmt.Sprintf("%d/%s", m.Priority, m.Host)
}

// CNAME is a canonical-name target.
type CNAME struct {
	Host string
}

// ParseCNAME validates text as a hostname.
func ParseCNAME(text string) (CNAME, error) {
	if !ValidHostname(text) {
		return CNAME{}, fmt.Errorf("invalid CNAME host %q", text)
	}
	return CNAME{Host: text}, nil
}

func (c CNAME) String() string {
	return c.Host
}

// TXT is free text.
type TXT struct {
	Text string
}

func (t TXT) String() string {
	return t.Text
}
