package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Terminal classifies how a position ended, if it did.
type Terminal string

const (
	TerminalNone      Terminal = ""
	TerminalCheckmate Terminal = "checkmate"
	TerminalStalemate Terminal = "stalemate"
	TerminalDraw      Terminal = "draw"
)

// Result is the outcome of applying one move to a board.
type Result struct {
	Move       Move
	FEN        string
	SAN        string
	SideToMove Color
	Terminal   Terminal
	// Method names the terminal rule (checkmate, stalemate, insufficientmaterial, ...).
	Method string
	// Winner is set on checkmate only.
	Winner Color
}

// Engine is the rules boundary. Implementations hold no state between calls;
// every call receives the complete board as FEN.
type Engine interface {
	LegalMoves(fen string) ([]Move, error)
	IsLegal(fen string, mv Move) bool
	Apply(fen string, mv Move) (Result, error)
	// Resolve turns user input (UCI or SAN) into a move legal on the board.
	Resolve(fen, text string) (Move, error)
}

// ChessEngine implements Engine on top of corentings/chess.
type ChessEngine struct{}

func NewEngine() *ChessEngine { return &ChessEngine{} }

func load(fen string) (*nchess.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		fen = StartFEN
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func (e *ChessEngine) LegalMoves(fen string) ([]Move, error) {
	game, err := load(fen)
	if err != nil {
		return nil, err
	}
	valid := game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for _, mv := range valid {
		parsed, err := ParseUCI(mv.String())
		if err != nil {
			return nil, fmt.Errorf("decode legal move %s: %w", mv.String(), err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func (e *ChessEngine) IsLegal(fen string, mv Move) bool {
	moves, err := e.LegalMoves(fen)
	if err != nil {
		return false
	}
	want := mv.UCI()
	for _, m := range moves {
		if m.UCI() == want {
			return true
		}
	}
	return false
}

func (e *ChessEngine) Apply(fen string, mv Move) (Result, error) {
	game, err := load(fen)
	if err != nil {
		return Result{}, err
	}
	if !e.IsLegal(fen, mv) {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	pos := game.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, mv.UCI())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)
	if err := game.Move(decoded, nil); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}

	res := Result{
		Move:       mv,
		FEN:        game.FEN(),
		SAN:        san,
		SideToMove: colorFrom(game.Position().Turn()),
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		res.Terminal = TerminalCheckmate
		res.Winner = White
	case nchess.BlackWon:
		res.Terminal = TerminalCheckmate
		res.Winner = Black
	case nchess.Draw:
		res.Terminal = TerminalDraw
		if game.Method() == nchess.Stalemate {
			res.Terminal = TerminalStalemate
		}
	}
	if res.Terminal != TerminalNone {
		res.Method = strings.ToLower(game.Method().String())
	}
	return res, nil
}

// Resolve tries coordinate notation first and falls back to SAN. A bare
// from/to pawn move onto the last rank promotes to a queen.
func (e *ChessEngine) Resolve(fen, text string) (Move, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Move{}, fmt.Errorf("%w: empty input", ErrBadNotation)
	}
	if mv, err := ParseUCI(raw); err == nil {
		if e.IsLegal(fen, mv) {
			return mv, nil
		}
		if mv.Promotion == "" {
			queen := Move{From: mv.From, To: mv.To, Promotion: "q"}
			if e.IsLegal(fen, queen) {
				return queen, nil
			}
		}
		return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, mv.UCI())
	}

	game, err := load(fen)
	if err != nil {
		return Move{}, err
	}
	pos := game.Position()
	decoded, err := nchess.AlgebraicNotation{}.Decode(pos, raw)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, raw)
	}
	mv, err := ParseUCI(nchess.UCINotation{}.Encode(pos, decoded))
	if err != nil {
		return Move{}, err
	}
	if !e.IsLegal(fen, mv) {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, raw)
	}
	return mv, nil
}

// Replay applies UCI moves from the initial position and returns the final FEN.
func Replay(e Engine, movesUCI []string) (string, error) {
	fen := StartFEN
	for i, raw := range movesUCI {
		mv, err := ParseUCI(raw)
		if err != nil {
			return "", fmt.Errorf("move %d: %w", i+1, err)
		}
		res, err := e.Apply(fen, mv)
		if err != nil {
			return "", fmt.Errorf("move %d: %w", i+1, err)
		}
		fen = res.FEN
	}
	return fen, nil
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}
