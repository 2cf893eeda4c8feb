// Package workflow holds the turn-determination primitive shared by the two
// approval chains: the tiered, request-scoped chain (several validators may
// share a rank and all must act before the next rank opens) and the
// single-file, journal-scoped chain (exactly one validator per rank, acted on
// strictly in order). Both reduce to the same question: what is the lowest
// rank that still has an undecided entry, and who sits at it.
package workflow

// Entry is one validator position in an approval chain.
type Entry struct {
	UserID  int64
	Rang    int
	Pending bool
}

// ActiveRank returns the minimum rank among pending entries. The second
// return is false when nothing is pending (chain finalized or mis-seeded).
func ActiveRank(entries []Entry) (int, bool) {
	found := false
	min := 0
	for _, e := range entries {
		if !e.Pending {
			continue
		}
		if !found || e.Rang < min {
			min = e.Rang
			found = true
		}
	}
	return min, found
}

// IsTurn reports whether userID holds a pending entry at the active rank.
// Validators sharing the active rank are all "on turn" at once; the tiered
// chain lets them act in any order within the tier.
func IsTurn(entries []Entry, userID int64) bool {
	rank, ok := ActiveRank(entries)
	if !ok {
		return false
	}
	for _, e := range entries {
		if e.Pending && e.Rang == rank && e.UserID == userID {
			return true
		}
	}
	return false
}

// NextInLine returns the single validator at the active rank. It is the
// strict variant used by the journal chain, where ranks never tie; when the
// data does carry a tie the lowest user id wins, keeping the pick stable.
func NextInLine(entries []Entry) (int64, bool) {
	rank, ok := ActiveRank(entries)
	if !ok {
		return 0, false
	}
	var userID int64
	found := false
	for _, e := range entries {
		if e.Pending && e.Rang == rank {
			if !found || e.UserID < userID {
				userID = e.UserID
				found = true
			}
		}
	}
	return userID, found
}

// PendingAt counts pending entries at the given rank.
func PendingAt(entries []Entry, rank int) int {
	n := 0
	for _, e := range entries {
		if e.Pending && e.Rang == rank {
			n++
		}
	}
	return n
}

// HasRank reports whether any entry (pending or not) sits at the given rank.
func HasRank(entries []Entry, rank int) bool {
	for _, e := range entries {
		if e.Rang == rank {
			return true
		}
	}
	return false
}
