package chessdto

type LeaderboardEntry struct {
	Rank   int
	Player PlayerView
}

type LeaderboardView struct {
	Scope   string
	Entries []LeaderboardEntry
}
