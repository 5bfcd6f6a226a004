package main

import (
	"testing"
)

func TestSplitList(t *testing.T) {
	got := splitList(" United Kingdom, France,,Germany ")
	want := []string{"United Kingdom", "France", "Germany"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if splitList("") != nil {
		t.Fatalf("empty input should give nil")
	}
}
