package httpmsg

import (
	"encoding/hex"
	"net/netip"
	"strings"
)

// ForwardedAddressHeader is the header GoReplay puts first on replayed requests.
const ForwardedAddressHeader = "X-Real-IP"

// Headers maps lower-cased header names to their last value.
type Headers map[string]string

// Get returns the value for name, case-insensitively.
func (h Headers) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// Field is one header line with the name as it was written.
type Field struct {
	Name  string
	Value string
}

// ParseFields parses a raw header block into fields in their original order.
// Lines starting with a space or tab continue the previous field and their
// trimmed content is appended to it.
func ParseFields(raw string) []Field {
	var fields []Field
	for _, line := range splitLines(raw) {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(fields) > 0 {
				fields[len(fields)-1].Value += strings.TrimSpace(line)
			}
			continue
		}
		name, value, _ := strings.Cut(line, ":")
		fields = append(fields, Field{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return fields
}

// ParseHeaders parses a raw header block as ParseFields does. When a name
// repeats, the last occurrence wins.
func ParseHeaders(raw string) Headers {
	headers := make(Headers)
	for _, f := range ParseFields(raw) {
		headers[strings.ToLower(f.Name)] = f.Value
	}
	return headers
}

func splitLines(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\r' || r == '\n'
	})
}

// NormalizeForwardedAddress rewrites a leading X-Real-IP header whose value
// carries an IPv4 address packed into the first two hextets of an IPv6
// literal ending in "::" (e.g. "c0a8:101::") into dotted-quad form.
// Anything it cannot parse is returned unchanged.
func NormalizeForwardedAddress(raw string) string {
	line, rest, hasRest := strings.Cut(raw, "\r\n")

	name, value, ok := strings.Cut(line, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), ForwardedAddressHeader) {
		return raw
	}

	value = strings.TrimSpace(value)
	if !strings.HasSuffix(value, "::") {
		return raw
	}

	parts := strings.SplitN(value, ":", 3)
	if len(parts) < 3 {
		return raw
	}

	packed, err := hex.DecodeString(padHextet(parts[0]) + padHextet(parts[1]))
	if err != nil || len(packed) != 4 {
		return raw
	}

	addr := netip.AddrFrom4([4]byte{packed[0], packed[1], packed[2], packed[3]})
	line = ForwardedAddressHeader + ": " + addr.String()
	if !hasRest {
		return line
	}
	return line + "\r\n" + rest
}

func padHextet(s string) string {
	if len(s) >= 4 {
		return s
	}
	return strings.Repeat("0", 4-len(s)) + s
}
