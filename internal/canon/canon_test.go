package canon

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestMarshal_KeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2, "c": []interface{}{1, 2, 3}}
	b := map[string]interface{}{"c": []interface{}{1, 2, 3}, "a": 2, "b": 1}

	ba, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal(a): %v", err)
	}
	bb, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal(b): %v", err)
	}
	if string(ba) != string(bb) {
		t.Errorf("canonical output differs:\n%s\n%s", ba, bb)
	}
}

func TestMarshal_SortedKeysNoWhitespace(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"z": 1, "a": "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":"x","z":1}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestMarshal_ArraysPreserveOrder(t *testing.T) {
	out, err := Marshal([]interface{}{3, 1, 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != "[3,1,2]" {
		t.Errorf("got %s", out)
	}
}

func TestMarshal_RejectsNonFinite(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := Marshal(bad); !errors.Is(err, ErrNotFinite) {
			t.Errorf("Marshal(%v): got %v, want ErrNotFinite", bad, err)
		}
	}
}

func TestTupleMap_NormalizedAndSorted(t *testing.T) {
	tm := TupleMap{
		{Key: []string{"s2", "a"}, Value: 1},
		{Key: []string{"s1", "a"}, Value: 2},
	}
	out, err := Marshal(tm)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"__tuplekey_dict__":[["s1|a",2],["s2|a",1]]}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestHash_TupleMapEntryOrderIndependent(t *testing.T) {
	a := TupleMap{
		{Key: []string{"1,1", "MOVE_RIGHT"}, Value: map[string]int64{"1,2": 1024}},
		{Key: []string{"1,2", "MOVE_RIGHT"}, Value: map[string]int64{"1,1": 1024}},
	}
	b := TupleMap{a[1], a[0]}

	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("Hash(a): %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("Hash(b): %v", err)
	}
	if ha != hb {
		t.Errorf("hash differs for reordered tuple map: %s vs %s", ha, hb)
	}
}

func TestMarshalStruct_MatchesRawJSONCanonicalization(t *testing.T) {
	type rec struct {
		B int    `json:"b"`
		A string `json:"a"`
	}
	v := rec{B: 7, A: "x"}

	fromStruct, err := MarshalStruct(v)
	if err != nil {
		t.Fatalf("MarshalStruct: %v", err)
	}
	raw, _ := json.Marshal(v)
	fromRaw, err := MarshalJSON(raw)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(fromStruct) != string(fromRaw) {
		t.Errorf("struct and raw canonicalization diverge: %s vs %s", fromStruct, fromRaw)
	}
	if string(fromStruct) != `{"a":"x","b":7}` {
		t.Errorf("unexpected canonical form: %s", fromStruct)
	}
}

func TestHash_IsLowercaseHexSHA256(t *testing.T) {
	h, err := Hash([]interface{}{"GENESIS"})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if len(h) != 64 {
		t.Fatalf("hash length %d, want 64", len(h))
	}
	for _, c := range h {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Fatalf("non-lowercase-hex rune %q in %s", c, h)
		}
	}
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"k": "a<b>&c"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"k":"a<b>&c"}` {
		t.Errorf("got %s", out)
	}
}
