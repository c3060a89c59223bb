package convo

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizePhone strips every non-digit rune so both provider formats
// ("+91 98765 43210", "919876543210") collapse to one canonical key.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseBirthTime accepts "HH:MM" 24-hour or "h[:mm] am/pm" and returns the
// canonical 24-hour "HH:MM" form.
func ParseBirthTime(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}

	meridiem := ""
	for _, suffix := range []string{"am", "pm", "a.m.", "p.m."} {
		if strings.HasSuffix(s, suffix) {
			meridiem = string(suffix[0])
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	hourPart, minutePart := s, "0"
	if idx := strings.IndexAny(s, ":."); idx >= 0 {
		hourPart, minutePart = s[:idx], s[idx+1:]
	}

	hour, err := strconv.Atoi(strings.TrimSpace(hourPart))
	if err != nil {
		return "", false
	}
	minute, err := strconv.Atoi(strings.TrimSpace(minutePart))
	if err != nil {
		return "", false
	}
	if minute < 0 || minute > 59 {
		return "", false
	}

	switch meridiem {
	case "a":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "p":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// payloadSuffix returns the remainder after a known prefix, or "".
func payloadSuffix(payload, prefix string) string {
	if strings.HasPrefix(payload, prefix) {
		return strings.TrimPrefix(payload, prefix)
	}
	return ""
}

// isMenuEscape reports whether the input is the universal menu-reset command.
func isMenuEscape(text, payload string) bool {
	return payload == PayloadMainMenu || strings.TrimSpace(text) == "0"
}

// isHistoryCommand matches the sankalp-history text command.
func isHistoryCommand(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "history" || t == "చరిత్ర"
}
