package mvcc

import "storyengine/internal/tuple"

// GapTracker is the shared-header tagged variant of spec.md §3's four gap
// flavors. A closed, small set of variants is represented as one struct
// with a Flavor tag rather than an interface with four implementations,
// per spec.md §9's design note ("avoid open virtual dispatch because the
// set is closed and small").
type GapTracker struct {
	Flavor GapFlavor
	Txn    *Transaction
	Index  *Index

	// HolderStory is non-nil when this tracker is attached to the top of
	// a chain (spec.md §3 invariant 5); nil means it is attached directly
	// to Index.ReadGaps. holderLinkIdx names which Link[i] it sits in when
	// HolderStory != nil.
	HolderStory  *Story
	holderLinkIdx int

	// Nearby/Count state (spec.md §3 "Nearby gap", "Count gap").
	IterType  IterType
	Key       *tuple.Tuple
	PartCount int
	Until     *tuple.Tuple
	UntilHint uint64

	txnNode    *node[*GapTracker]
	holderNode *node[*GapTracker]
}

func (g *GapTracker) holderList() *list[*GapTracker] {
	if g.HolderStory != nil {
		return &g.HolderStory.Link[g.holderLinkIdx].ReadGaps
	}
	return &g.Index.ReadGaps
}

func (g *GapTracker) unlink() {
	g.txnNode.Unlink()
	g.holderNode.Unlink()
}

// reattach moves g from its current holder onto newS's Link[i], used when
// the physical top of a chain changes (story.go's linkTop) and when the
// writer-side gap scan (gapwriter.go) relocates a nearby tracker.
func (g *GapTracker) reattach(newS *Story, i int) {
	g.holderNode.Unlink()
	g.HolderStory = newS
	g.holderLinkIdx = i
	g.holderNode = newS.Link[i].ReadGaps.PushFront(g)
}

// reattachToIndex detaches g from a story and attaches it directly to its
// index's global ReadGaps (the "no successor" placement).
func (g *GapTracker) reattachToIndex() {
	g.holderNode.Unlink()
	g.HolderStory = nil
	g.holderNode = g.Index.ReadGaps.PushFront(g)
}

func newGapCommon(flavor GapFlavor, txn *Transaction, idx *Index) *GapTracker {
	g := &GapTracker{Flavor: flavor, Txn: txn, Index: idx}
	g.txnNode = txn.GapList.PushFront(g)
	return g
}

// attachInplaceGap implements spec.md §3 "Inplace gap": created whenever
// a visibility walk skips a pending insert or delete, attached to the top
// of the chain in the affected index (holder, at link index i).
func attachInplaceGap(txn *Transaction, holder *Story, i int) *GapTracker {
	g := newGapCommon(GapInplace, txn, holder.Link[i].InIndex)
	g.HolderStory = holder
	g.holderLinkIdx = i
	g.holderNode = holder.Link[i].ReadGaps.PushFront(g)
	return g
}

// attachNearbyGap implements spec.md §3 "Nearby gap". holder is the
// successor story found by the scan, or nil if the scan found nothing (in
// which case the tracker is attached to idx directly).
func attachNearbyGap(txn *Transaction, idx *Index, holder *Story, holderLinkIdx int, it IterType, key *tuple.Tuple, partCount int) *GapTracker {
	g := newGapCommon(GapNearby, txn, idx)
	g.IterType, g.Key, g.PartCount = it, key, partCount
	if holder != nil {
		g.HolderStory = holder
		g.holderLinkIdx = holderLinkIdx
		g.holderNode = holder.Link[holderLinkIdx].ReadGaps.PushFront(g)
	} else {
		g.holderNode = idx.ReadGaps.PushFront(g)
	}
	return g
}

// attachCountGap implements spec.md §3 "Count gap", always attached to
// the index's global ReadGaps. A full-index, no-bound count item is
// appended at the tail so a subsequent full count can detect duplicates
// in O(1) amortized (spec.md §4.3 "Count").
func attachCountGap(txn *Transaction, idx *Index, it IterType, key *tuple.Tuple, partCount int, until *tuple.Tuple, untilHint uint64) *GapTracker {
	g := newGapCommon(GapCount, txn, idx)
	g.IterType, g.Key, g.PartCount, g.Until, g.UntilHint = it, key, partCount, until, untilHint
	if key == nil && until == nil {
		g.holderNode = idx.ReadGaps.PushBack(g)
	} else {
		g.holderNode = idx.ReadGaps.PushFront(g)
	}
	return g
}

// attachFullScanGap implements spec.md §3 "Full-scan gap".
func attachFullScanGap(txn *Transaction, idx *Index) *GapTracker {
	g := newGapCommon(GapFullScan, txn, idx)
	g.holderNode = idx.ReadGaps.PushFront(g)
	return g
}
