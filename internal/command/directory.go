package command

import (
	"strings"
	"sync"

	"github.com/park285/cheese-matchbot/internal/match"
	"github.com/park285/cheese-matchbot/pkg/chessdto"
)

// directory maps display names seen in a scope to platform user ids, so a
// typed @mention keys the same player as the sender id on later commands.
type directory struct {
	mu     sync.RWMutex
	ids    map[string]map[string]struct{}            // scope -> known ids
	byName map[string]map[string]map[string]struct{} // scope -> folded name -> ids
}

func newDirectory() *directory {
	return &directory{
		ids:    make(map[string]map[string]struct{}),
		byName: make(map[string]map[string]map[string]struct{}),
	}
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// observe records the sender of a message.
func (d *directory) observe(meta chessdto.Meta) {
	id := strings.TrimSpace(meta.Actor)
	if id == "" {
		return
	}
	scope := strings.TrimSpace(meta.Scope)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ids[scope] == nil {
		d.ids[scope] = make(map[string]struct{})
		d.byName[scope] = make(map[string]map[string]struct{})
	}
	d.ids[scope][id] = struct{}{}
	if name := foldName(meta.ActorName); name != "" && name != foldName(id) {
		if d.byName[scope][name] == nil {
			d.byName[scope][name] = make(map[string]struct{})
		}
		d.byName[scope][name][id] = struct{}{}
	}
}

// resolve turns a mention into a user id. Known ids win over names; a name
// shared by several users is ambiguous.
func (d *directory) resolve(scope, mention string) (string, error) {
	mention = strings.TrimSpace(mention)
	scope = strings.TrimSpace(scope)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.ids[scope][mention]; ok {
		return mention, nil
	}
	ids := d.byName[scope][foldName(mention)]
	switch len(ids) {
	case 0:
		return "", match.NotFound("player %s has not been seen here yet", mention)
	case 1:
		for id := range ids {
			return id, nil
		}
	}
	return "", match.NotFound("more than one player is named %s", mention)
}
