package chessdto

// MoveResult summarises one applied move.
type MoveResult struct {
	Match    MatchView
	MoveSAN  string
	MoveUCI  string
	Finished bool
	PGN      string
}
