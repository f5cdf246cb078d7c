package mvcc

import "storyengine/internal/tuple"

// nearbyInside reports whether t falls inside the range a nearby or count
// gap tracker observed as empty, given its recorded iterator type, key and
// part count (spec.md §4.3's tie-break table). EQ/REQ ask for an exact
// match over PartCount fields; the four ordered directions ask whether t
// is on the side of Key the iterator was walking toward.
func nearbyInside(idx *Index, t *tuple.Tuple, it IterType, key *tuple.Tuple, partCount int) (cmp int, fullKey, inside bool) {
	parts := idx.Def.Parts
	if partCount < len(parts) {
		parts = parts[:partCount]
	}
	cmp = tuple.CompareParts(t, key, parts)
	fullKey = partCount >= len(idx.Def.Parts)
	switch it {
	case IterEQ, IterREQ:
		inside = cmp == 0
	case IterGE:
		inside = cmp >= 0
	case IterGT:
		inside = cmp > 0
	case IterLE:
		inside = cmp <= 0
	case IterLT:
		inside = cmp < 0
	}
	return cmp, fullKey, inside
}

// handleGapWrite implements spec.md §4.3 items 1 and 3: a brand-new key
// entering index idx at link i is checked against every full-scan gap
// (converted into an inplace gap against the new story) and every nearby
// gap reachable from its immediate successor or the index itself (the
// holder gets an inplace gap on the new story if it lands inside the range,
// and the tracker is split, moved or left per the tie-break rules derived
// in DESIGN.md).
func handleGapWrite(idx *Index, i int, newStory, successor *Story, writer *Transaction) {
	for _, g := range idx.ReadGaps.ToSlice() {
		if g.Flavor != GapFullScan || g.Txn == writer {
			continue
		}
		attachInplaceGap(g.Txn, newStory, i)
	}

	candidates := idx.ReadGaps.ToSlice()
	if successor != nil {
		candidates = append(candidates, successor.Link[i].ReadGaps.ToSlice()...)
	}
	for _, g := range candidates {
		if g.Flavor != GapNearby || g.Txn == writer {
			continue
		}
		applyNearbyWrite(idx, i, newStory, g)
	}
}

// applyNearbyWrite relocates a single nearby gap tracker in response to a
// new story appearing inside (or outside) the range it protects. A new
// story inside the range also gets an inplace gap for g's transaction, so
// the prepare-time conflict cascade reaches it.
func applyNearbyWrite(idx *Index, i int, newStory *Story, g *GapTracker) {
	_, fullKey, inside := nearbyInside(idx, newStory.Tuple, g.IterType, g.Key, g.PartCount)
	if !inside {
		return // outside the protected range: leave g exactly where it is
	}
	attachInplaceGap(g.Txn, newStory, i)

	switch {
	case g.IterType == IterEQ || g.IterType == IterREQ:
		if fullKey {
			// The scanner's exact key now exists: the old "not found" claim
			// is fully superseded, nothing further needs watching.
			g.reattach(newStory, i)
			return
		}
		// Partial-prefix match: more tuples sharing this prefix could still
		// land on either side of newStory, so duplicate rather than move.
		attachNearbyGap(g.Txn, idx, newStory, i, g.IterType, g.Key, g.PartCount)
	default:
		if g.HolderStory != nil {
			// There is a known far boundary beyond newStory; split so both
			// the near side (key..newStory) and the far side
			// (newStory..g.HolderStory) stay covered.
			attachNearbyGap(g.Txn, idx, newStory, i, g.IterType, g.Key, g.PartCount)
			return
		}
		// No far boundary existed (the scan had run off the end of the
		// index, or the index was empty): newStory becomes the new
		// boundary outright, nothing is left to protect beyond it.
		g.reattach(newStory, i)
	}
}

// handlePointHoleWrite implements spec.md §4.3 item 2: every point-hole
// waiter at t's exact key is converted into an inplace gap against the
// new story and removed from the table — the hole it was watching for is
// now filled.
func handlePointHoleWrite(idx *Index, i int, newStory *Story, writer *Transaction) {
	if idx.PointHoles == nil {
		return
	}
	for _, p := range idx.PointHoles.Waiters(idx, newStory.Tuple) {
		if p.Txn == writer {
			continue
		}
		attachInplaceGap(p.Txn, newStory, i)
		p.unlink()
	}
}

// handleCountedWrite implements spec.md §4.3 item 4. On insert, every
// count gap whose range now covers the new story gains it as a read
// dependency (the counting transaction must be told about it at
// prepare time rather than simply missing it); on delete, the counting
// transaction itself is sent to a read view, since its count can no
// longer be trusted to hold at commit.
func handleCountedWrite(e *Engine, idx *Index, newStory *Story, writer *Transaction, isInsert bool) {
	for _, g := range idx.ReadGaps.ToSlice() {
		if g.Flavor != GapCount || g.Txn == writer {
			continue
		}
		if g.Key != nil {
			if _, _, inside := nearbyInside(idx, newStory.Tuple, g.IterType, g.Key, g.PartCount); !inside {
				continue
			}
		}
		if g.Until != nil {
			if cmp := tuple.CompareParts(newStory.Tuple, g.Until, idx.Def.Parts); !countWithinUntil(g.IterType, cmp) {
				continue
			}
		}
		if isInsert {
			trackReadStory(g.Txn, newStory)
		} else {
			e.sendToReadView(g.Txn, writer.Psn)
		}
	}
}

func countWithinUntil(it IterType, cmpToUntil int) bool {
	if it.Ascending() {
		return cmpToUntil < 0
	}
	return cmpToUntil > 0
}
