package mvcc

import "storyengine/internal/tuple"

// pointHole implements spec.md §3 "Point-hole tracker": a transaction
// recorded a lookup by full key on a unique index that found nothing.
type pointHole struct {
	Txn   *Transaction
	Index *Index
	Key   string

	tableNode *node[*pointHole] // link in pointHoleTable.buckets[bucket]
	txnNode   *node[*pointHole] // link in Transaction.PointHolesList
}

func (p *pointHole) unlink() {
	p.tableNode.Unlink()
	p.txnNode.Unlink()
}

// pointHoleTable is a hash table keyed by (index identity, key bytes),
// one per unique index (spec.md §3: "belongs to a unique index"). The map
// is keyed by the xxhash of the key string; the list per bucket holds every
// tracker whose key hashes there, which covers both several transactions
// tracking a hole at the same key and distinct keys whose hashes collide
// (Track and Waiters compare the full key).
type pointHoleTable struct {
	buckets map[uint64]*list[*pointHole]
}

func newPointHoleTable() *pointHoleTable {
	return &pointHoleTable{buckets: make(map[uint64]*list[*pointHole])}
}

// Track installs a point-hole tracker for txn at t's key in idx,
// deduplicating against any tracker txn already holds there.
func (pt *pointHoleTable) Track(txn *Transaction, idx *Index, t *tuple.Tuple) *pointHole {
	key := idx.keyOf(t)
	b := idx.bucket(t)
	bucket := pt.buckets[b]
	if bucket != nil {
		for n := bucket.Front(); n != nil; n = n.next {
			if p := n.Value(); p.Txn == txn && p.Key == key {
				return p
			}
		}
	} else {
		bucket = &list[*pointHole]{}
		pt.buckets[b] = bucket
	}
	p := &pointHole{Txn: txn, Index: idx, Key: key}
	p.txnNode = txn.PointHolesList.PushFront(p)
	p.tableNode = bucket.PushFront(p)
	return p
}

// Waiters returns every point-hole tracker currently recorded at t's key,
// for the writer-side scan's handle_point_hole_write step (spec.md §4.3
// item 2).
func (pt *pointHoleTable) Waiters(idx *Index, t *tuple.Tuple) []*pointHole {
	key := idx.keyOf(t)
	bucket := pt.buckets[idx.bucket(t)]
	if bucket == nil {
		return nil
	}
	var out []*pointHole
	for n := bucket.Front(); n != nil; n = n.next {
		if p := n.Value(); p.Key == key {
			out = append(out, p)
		}
	}
	return out
}
