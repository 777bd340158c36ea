package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

var (
	// ErrNotCommand marks chat text without the bot prefix.
	ErrNotCommand = errors.New("not a command")
	ErrUnknown    = errors.New("unknown command")
)

// UsageError reports malformed arguments for a known command.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("usage: %s", e.Usage)
}

type verb int

const (
	verbChallenge verb = iota + 1
	verbAccept
	verbDecline
	verbCancel
	verbMove
	verbShow
	verbSurrender
	verbStats
	verbLeaderboard
	verbHelp
)

var verbs = map[string]verb{
	"challenge": verbChallenge, "invite": verbChallenge, "도전": verbChallenge, "대국": verbChallenge,
	"accept": verbAccept, "수락": verbAccept,
	"decline": verbDecline, "거절": verbDecline,
	"cancel": verbCancel, "취소": verbCancel,
	"move": verbMove, "mv": verbMove, "m": verbMove, "수": verbMove,
	"show": verbShow, "board": verbShow, "status": verbShow, "현황": verbShow,
	"surrender": verbSurrender, "resign": verbSurrender, "기권": verbSurrender,
	"stats": verbStats, "전적": verbStats,
	"leaderboard": verbLeaderboard, "top": verbLeaderboard, "rank": verbLeaderboard, "랭킹": verbLeaderboard,
	"help": verbHelp, "도움말": verbHelp,
}

var (
	sanPattern = regexp.MustCompile(`^([KQRBN]?[a-h]?[1-8]?x?[a-h][1-8](=?[QRBNqrbn])?|O-O(-O)?)[+#]?[!?]*$`)
	uciPattern = regexp.MustCompile(`^[a-hA-H][1-8]-?[a-hA-H][1-8][qrbnQRBN]?$`)
)

func looksLikeMove(s string) bool {
	return sanPattern.MatchString(s) || uciPattern.MatchString(s)
}

// Parse turns prefixed chat text into a request. A bare move after the prefix
// ("!e4") is read as a move.
func Parse(prefix, text string, meta chessdto.Meta) (chessdto.Request, error) {
	prefix = strings.TrimSpace(prefix)
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return nil, ErrNotCommand
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return chessdto.HelpRequest{Meta: meta}, nil
	}
	head, args := fields[0], fields[1:]

	v, ok := verbs[strings.ToLower(head)]
	if !ok {
		if len(args) == 0 && looksLikeMove(head) {
			return chessdto.MoveRequest{Meta: meta, Move: head}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknown, head)
	}

	switch v {
	case verbChallenge:
		return parseChallenge(prefix, head, args, meta)
	case verbAccept:
		id, err := optionalID(prefix, head, args)
		return chessdto.AcceptRequest{Meta: meta, InvitationID: id}, err
	case verbDecline:
		id, err := optionalID(prefix, head, args)
		return chessdto.DeclineRequest{Meta: meta, InvitationID: id}, err
	case verbCancel:
		id, err := optionalID(prefix, head, args)
		return chessdto.CancelRequest{Meta: meta, InvitationID: id}, err
	case verbMove:
		if len(args) == 0 || len(args) > 2 {
			return nil, &UsageError{Command: head, Usage: prefix + head + " <e2e4|Nf3>"}
		}
		return chessdto.MoveRequest{Meta: meta, Move: strings.Join(args, " ")}, nil
	case verbShow:
		id, err := optionalID(prefix, head, args)
		return chessdto.ShowRequest{Meta: meta, MatchID: id}, err
	case verbSurrender:
		id, err := optionalID(prefix, head, args)
		return chessdto.SurrenderRequest{Meta: meta, MatchID: id}, err
	case verbStats:
		if len(args) > 1 {
			return nil, &UsageError{Command: head, Usage: prefix + head + " [@user]"}
		}
		req := chessdto.StatsRequest{Meta: meta}
		if len(args) == 1 {
			req.PlayerID = userArg(args[0])
		}
		return req, nil
	case verbLeaderboard:
		req := chessdto.LeaderboardRequest{Meta: meta}
		if len(args) > 1 {
			return nil, &UsageError{Command: head, Usage: prefix + head + " [N]"}
		}
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return nil, &UsageError{Command: head, Usage: prefix + head + " [N]"}
			}
			req.Limit = n
		}
		return req, nil
	default:
		return chessdto.HelpRequest{Meta: meta}, nil
	}
}

const (
	challengeArgs  = "[@user] [white|black|random] [unrated]"
	challengeUsage = "challenge " + challengeArgs
)

func parseChallenge(prefix, head string, args []string, meta chessdto.Meta) (chessdto.Request, error) {
	req := chessdto.NewInvitationRequest{Meta: meta, Rated: true}
	usage := &UsageError{Command: head, Usage: prefix + head + " " + challengeArgs}
	for _, arg := range args {
		lower := strings.ToLower(arg)
		if c, ok := parseColorArg(lower); ok {
			req.Color = string(c)
			continue
		}
		switch lower {
		case "unrated", "casual", "친선":
			req.Rated = false
			continue
		case "rated", "랭크":
			req.Rated = true
			continue
		}
		if req.Target != "" {
			return nil, usage
		}
		req.Target = userArg(arg)
		if req.Target == "" {
			return nil, usage
		}
	}
	return req, nil
}

func parseColorArg(s string) (match.ColorChoice, bool) {
	switch s {
	case "white", "w", "백":
		return match.ColorWhite, true
	case "black", "b", "흑":
		return match.ColorBlack, true
	case "random", "r", "랜덤":
		return match.ColorRandom, true
	default:
		return "", false
	}
}

func optionalID(prefix, head string, args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return strings.TrimPrefix(strings.TrimSpace(args[0]), "#"), nil
	default:
		return "", &UsageError{Command: head, Usage: prefix + head + " [id]"}
	}
}

func userArg(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}
