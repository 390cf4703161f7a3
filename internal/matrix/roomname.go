package matrix

import (
	"fmt"
	"strings"
)

// maxHeroNames caps how many member names a computed room name lists.
const maxHeroNames = 5

type hero struct {
	ID   string
	Name string
}

type heroInfo struct {
	Heroes      []hero
	JoinCount   int
	InviteCount int
}

// calculateRoomName picks a room's display name: the m.room.name value, then
// the canonical alias, then a name composed from the room's heroes.
func calculateRoomName(roomName, canonicalAlias string, maxNames int, info heroInfo) string {
	if roomName != "" {
		return roomName
	}
	if canonicalAlias != "" {
		return canonicalAlias
	}
	names := disambiguate(info.Heroes)
	others := info.JoinCount + info.InviteCount - 1
	alone := others <= 0

	if len(info.Heroes) == 0 && alone {
		return "Empty Room"
	}

	if len(info.Heroes) >= others {
		if len(names) == 1 {
			if alone {
				return fmt.Sprintf("Empty Room (was %s)", names[0])
			}
			return names[0]
		}
		joined := strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
		if alone {
			return fmt.Sprintf("Empty Room (was %s)", joined)
		}
		return joined
	}

	n := len(names)
	if n > maxNames {
		n = maxNames
	}
	joined := fmt.Sprintf("%s and %d others", strings.Join(names[:n], ", "), others-n)
	if info.JoinCount+info.InviteCount > 1 {
		return joined
	}
	return fmt.Sprintf("Empty Room (was %s)", joined)
}

// disambiguate appends the user ID to every name shared by several heroes.
func disambiguate(heroes []hero) []string {
	byName := make(map[string][]int)
	for i, h := range heroes {
		byName[h.Name] = append(byName[h.Name], i)
	}
	names := make([]string, len(heroes))
	for _, indexes := range byName {
		if len(indexes) == 1 {
			names[indexes[0]] = heroes[indexes[0]].Name
			continue
		}
		for _, i := range indexes {
			names[i] = fmt.Sprintf("%s (%s)", heroes[i].Name, heroes[i].ID)
		}
	}
	return names
}
