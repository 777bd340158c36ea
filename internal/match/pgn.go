package match

import (
	"fmt"
	"strings"
	"time"
)

// ResultToken maps a match state to its PGN result.
func ResultToken(s State, m *Match) string {
	switch s {
	case StateWhiteWon:
		return "1-0"
	case StateBlackWon:
		return "0-1"
	case StateDraw:
		return "1/2-1/2"
	case StateSurrendered:
		if m != nil && m.WinnerID == m.WhiteID {
			return "1-0"
		}
		return "0-1"
	default:
		return "*"
	}
}

// BuildPGN renders the match as PGN text. Player names default to ids.
func BuildPGN(m *Match, event, site string, names map[string]string) string {
	if m == nil {
		return ""
	}
	name := func(id string) string {
		if n := strings.TrimSpace(names[id]); n != "" {
			return n
		}
		return id
	}
	date := m.CreatedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := ResultToken(m.State, m)

	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitizePGN(event))
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(site))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(name(m.WhiteID)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(name(m.BlackID)))
	if strings.TrimSpace(m.Method) != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m.Method)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(m.MovesSAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(m.MovesSAN[i]))
		if i+1 < len(m.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(m.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
