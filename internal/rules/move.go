package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Other returns the opposing side.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// ParseColor accepts white/black and their one-letter forms.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

var (
	ErrBadNotation = errors.New("unrecognized move notation")
	ErrIllegalMove = errors.New("illegal move")
	ErrBadPosition = errors.New("invalid board position")
)

// Move is a from/to pair of algebraic squares with an optional promotion piece (q, r, b, n).
type Move struct {
	From      string
	To        string
	Promotion string
}

// NewMove builds a move from two squares, normalizing case.
func NewMove(from, to string) (Move, error) {
	m := Move{From: strings.ToLower(strings.TrimSpace(from)), To: strings.ToLower(strings.TrimSpace(to))}
	if !validSquare(m.From) || !validSquare(m.To) {
		return Move{}, fmt.Errorf("%w: %q %q", ErrBadNotation, from, to)
	}
	return m, nil
}

// ParseUCI parses coordinate notation: e2e4, e7e8q, e2-e4 and "e2 e4" are accepted.
func ParseUCI(s string) (Move, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.NewReplacer("-", "", " ", "").Replace(raw)
	if len(raw) != 4 && len(raw) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, s)
	}
	m := Move{From: raw[0:2], To: raw[2:4]}
	if !validSquare(m.From) || !validSquare(m.To) {
		return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, s)
	}
	if len(raw) == 5 {
		switch raw[4] {
		case 'q', 'r', 'b', 'n':
			m.Promotion = raw[4:5]
		default:
			return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, s)
		}
	}
	return m, nil
}

// UCI renders the move in coordinate notation.
func (m Move) UCI() string {
	return m.From + m.To + m.Promotion
}

func (m Move) String() string { return m.UCI() }

func validSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
