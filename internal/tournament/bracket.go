package tournament

import "fmt"

// buildSingleElimination seeds the first round from the entries in roster
// order: 1v2, 3v4, and so on, with byes padding up to the next power of
// two. Later rounds are empty slots filled as results come in. The layout
// is fully determined by the input order.
func buildSingleElimination(entries []Entry) []Round {
	size := 1
	for size < len(entries) {
		size *= 2
	}

	first := Round{Label: roundLabel(size)}
	for i := 0; i < size; i += 2 {
		var p Pairing
		if i < len(entries) {
			p.TeamA = entries[i].TeamID
		}
		if i+1 < len(entries) {
			p.TeamB = entries[i+1].TeamID
		}
		// A bye advances the present team immediately.
		if p.TeamA != "" && p.TeamB == "" {
			p.WinnerID = p.TeamA
		}
		first.Pairings = append(first.Pairings, p)
	}

	rounds := []Round{first}
	for slots := size / 2; slots >= 2; slots /= 2 {
		r := Round{Label: roundLabel(slots), Pairings: make([]Pairing, slots/2)}
		rounds = append(rounds, r)
	}
	return rounds
}

// buildGroupStage splits the entries into groups of up to four, each played
// as a round robin.
func buildGroupStage(entries []Entry) []Round {
	const groupSize = 4
	var rounds []Round
	for g := 0; g*groupSize < len(entries); g++ {
		lo := g * groupSize
		hi := lo + groupSize
		if hi > len(entries) {
			hi = len(entries)
		}
		group := Round{Label: fmt.Sprintf("Group %c", 'A'+g)}
		members := entries[lo:hi]
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				group.Pairings = append(group.Pairings, Pairing{
					TeamA: members[i].TeamID,
					TeamB: members[j].TeamID,
				})
			}
		}
		rounds = append(rounds, group)
	}
	return rounds
}

func roundLabel(slots int) string {
	switch slots {
	case 2:
		return "Final"
	case 4:
		return "Semifinal"
	case 8:
		return "Quarterfinal"
	}
	return fmt.Sprintf("Round of %d", slots)
}
