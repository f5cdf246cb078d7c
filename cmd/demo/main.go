package main

import (
	"fmt"

	"storyengine/engine"
	"storyengine/internal/config"
)

func main() {
	eng := engine.New(config.Default(), nil)

	accounts := eng.CreateSpace("accounts")
	if _, err := accounts.AttachIndex("primary", engine.IndexDef{
		Parts: []int{0}, Unique: true, Ordered: true,
	}); err != nil {
		panic(err)
	}

	if err := eng.Update(engine.ReadCommitted, func(txn *engine.Txn) error {
		return txn.Insert(accounts, "alice", 100)
	}); err != nil {
		panic(err)
	}

	if err := eng.Update(engine.ReadCommitted, func(txn *engine.Txn) error {
		return txn.Insert(accounts, "bob", 50)
	}); err != nil {
		panic(err)
	}

	_ = eng.View(engine.ReadCommitted, func(txn *engine.Txn) error {
		row, ok := txn.Get(accounts, 0, "alice")
		fmt.Println(ok, row)
		return nil
	})

	// Write-skew style conflict: two read-committed transactions each
	// read the other's target row before writing their own. The first to
	// prepare (t2) forces the other (t1), still in progress, into a read
	// view; t1 can still write and commit afterward.
	t1 := eng.Begin(engine.ReadCommitted)
	t2 := eng.Begin(engine.ReadCommitted)

	if _, ok := t1.Get(accounts, 0, "alice"); !ok {
		panic("expected alice to be visible")
	}
	if _, ok := t2.Get(accounts, 0, "bob"); !ok {
		panic("expected bob to be visible")
	}

	if err := t2.Replace(accounts, "alice", 40); err != nil {
		panic(err)
	}
	if err := t2.Commit(); err != nil {
		panic(err)
	}

	if err := t1.Replace(accounts, "bob", 60); err != nil {
		panic(err)
	}
	if err := t1.Commit(); err != nil {
		fmt.Println("t1 aborted by conflict:", err)
	}

	eng.GCStep()
}
