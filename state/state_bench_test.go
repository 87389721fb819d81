package state

import (
	"fmt"
	"testing"
)

func benchEntry(i int) Entry {
	return Entry{
		ThreadID: fmt.Sprintf("thread-%d", i),
		Hash:     ContentHash(fmt.Sprintf("body-%d", i)),
		Summary:  "Bob approved the budget.",
		Status:   "ok",
	}
}

// BenchmarkFileStore_Save benchmarks the store write performance
func BenchmarkFileStore_Save(b *testing.B) {
	store, err := NewFileStore(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.Save(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()

	if err := store.Close(); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkFileStore_Lookup benchmarks lookup performance
func BenchmarkFileStore_Lookup(b *testing.B) {
	store, err := NewFileStore(b.TempDir(), true)
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	entries := make([]Entry, 1000)
	for i := range entries {
		entries[i] = benchEntry(i)
		if err := store.Save(entries[i]); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := entries[i%len(entries)]
		_, _ = store.Lookup(e.ThreadID, e.Hash)
	}
}

// BenchmarkFileStore_Load benchmarks the state file loading performance
func BenchmarkFileStore_Load(b *testing.B) {
	dir := b.TempDir()
	store, err := NewFileStore(dir, true)
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		if err := store.Save(benchEntry(i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store, err := NewFileStore(dir, false)
		if err != nil {
			b.Fatal(err)
		}
		store.Close()
	}
}

// BenchmarkContentHash benchmarks fingerprinting an assembled thread
func BenchmarkContentHash(b *testing.B) {
	text := fmt.Sprintf("%0*d", 4000, 0)
	for i := 0; i < b.N; i++ {
		ContentHash(text)
	}
}
