package merkle

import (
	"strings"
	"testing"

	"github.com/mauludsadiq/VSC-Nature-Auto-Oracle-Verifier/internal/canon"
)

func fakeHash(c byte) string {
	return strings.Repeat(string(c), 64)
}

func TestPair_MatchesCanonHash(t *testing.T) {
	h1, h2 := fakeHash('a'), fakeHash('b')
	want, err := canon.Hash([]interface{}{h1, h2})
	if err != nil {
		t.Fatalf("canon.Hash: %v", err)
	}
	if got := Pair(h1, h2); got != want {
		t.Errorf("Pair diverges from canon.Hash([h1,h2]): %s vs %s", got, want)
	}
}

func TestRoot_Empty(t *testing.T) {
	if _, err := Root(nil); err != ErrEmptyLeaves {
		t.Errorf("Root(nil): got %v, want ErrEmptyLeaves", err)
	}
}

func TestRoot_Single(t *testing.T) {
	h := fakeHash('1')
	root, err := Root([]string{h})
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root != h {
		t.Errorf("single-leaf root should be the leaf itself")
	}
}

func TestRoot_FiveLeavesDuplicatesOdd(t *testing.T) {
	l := []string{fakeHash('1'), fakeHash('2'), fakeHash('3'), fakeHash('4'), fakeHash('5')}

	// Level 1: duplicate the 5th leaf, pair up.
	p12 := Pair(l[0], l[1])
	p34 := Pair(l[2], l[3])
	p55 := Pair(l[4], l[4])
	// Level 2: three nodes, duplicate the last.
	p1234 := Pair(p12, p34)
	p5555 := Pair(p55, p55)
	want := Pair(p1234, p5555)

	got, err := Root(l)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got != want {
		t.Errorf("five-leaf root mismatch:\ngot  %s\nwant %s", got, want)
	}
}

func TestRoot_SensitiveToLeafOrder(t *testing.T) {
	a := []string{fakeHash('1'), fakeHash('2')}
	b := []string{fakeHash('2'), fakeHash('1')}
	ra, _ := Root(a)
	rb, _ := Root(b)
	if ra == rb {
		t.Error("root should depend on leaf order")
	}
}

func TestLeafNames_FixedOrder(t *testing.T) {
	want := []string{"percept", "model_contract", "value_table", "risk_gate", "exec"}
	if len(LeafNames) != len(want) {
		t.Fatalf("LeafNames has %d entries, want %d", len(LeafNames), len(want))
	}
	for i, n := range want {
		if LeafNames[i] != n {
			t.Errorf("LeafNames[%d] = %q, want %q", i, LeafNames[i], n)
		}
	}
}
