package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"chatty":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWritesJSONFile(t *testing.T) {
	restore := Set(nil)
	defer restore()

	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	if err := Init(Options{Level: "info", Format: "json", ToFile: true, File: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	L().Info("match_move", zap.String("match_id", "m-1"))
	_ = L().Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(raw)
	if !strings.Contains(line, `"msg":"match_move"`) || !strings.Contains(line, `"match_id":"m-1"`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}
