package chessdto

import "time"

type PlayerView struct {
	ID        string
	Name      string
	Wins      int
	Losses    int
	Draws     int
	Rating    int
	Ratio     float64
	HasRatio  bool
	Games     int
	UpdatedAt time.Time
}
