// Command matchcheck verifies that every live record in the store can be
// recovered: each active match's move history must replay to its stored board.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/park285/cheese-matchbot/internal/builder"
	"github.com/park285/cheese-matchbot/internal/config"
	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/internal/rules"
	"github.com/park285/cheese-matchbot/internal/store"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadStorage()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := builder.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	bad, err := check(ctx, st, rules.NewEngine(), os.Stdout)
	if err != nil {
		log.Fatalf("check: %v", err)
	}
	if bad > 0 {
		os.Exit(1)
	}
}

// check prints one line per live channel and returns how many failed.
func check(ctx context.Context, st store.Store, engine rules.Engine, out io.Writer) (int, error) {
	live, err := st.ListLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live: %w", err)
	}
	bad := 0
	for _, ch := range live {
		switch {
		case ch.Match != nil:
			m := ch.Match
			if err := match.Replay(engine, m); err != nil {
				bad++
				fmt.Fprintf(out, "FAIL match %s channel=%s: %v\n", m.ID, m.ChannelID, err)
				continue
			}
			fmt.Fprintf(out, "ok   match %s channel=%s ply=%d to_move=%s\n", m.ID, m.ChannelID, len(m.MovesUCI), m.SideToMove)
		case ch.Invitation != nil:
			inv := ch.Invitation
			fmt.Fprintf(out, "ok   invitation %s channel=%s initiator=%s\n", inv.ID, inv.ChannelID, inv.InitiatorID)
		}
	}
	fmt.Fprintf(out, "%d live channel(s), %d failed\n", len(live), bad)
	return bad, nil
}
