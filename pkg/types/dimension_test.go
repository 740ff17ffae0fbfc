package types

import "testing"

func TestDimensionKey_StructuralEquality(t *testing.T) {
	a := NewDimensionKey(map[string]string{"app": "A", "uid": "1000"})
	b := KeyOf("uid", "1000", "app", "A")
	if a != b {
		t.Fatalf("keys built from the same labels differ: %q vs %q", a, b)
	}

	m := map[DimensionKey]int{a: 1}
	if m[b] != 1 {
		t.Errorf("map lookup with equal key failed")
	}
	if a.Hash() != b.Hash() {
		t.Errorf("Hash differs for equal keys")
	}
}

func TestDimensionKey_Distinct(t *testing.T) {
	if KeyOf("app", "A") == KeyOf("app", "B") {
		t.Error("different values must give different keys")
	}
	if KeyOf("app", "") == (DimensionKey{}) {
		t.Error("empty value must differ from missing label")
	}
}

func TestDimensionKey_String(t *testing.T) {
	k := KeyOf("uid", "7", "app", "A")
	if got := k.String(); got != "app=A,uid=7" {
		t.Errorf("String() = %q, want %q", got, "app=A,uid=7")
	}
	if got := (DimensionKey{}).String(); got != "{}" {
		t.Errorf("empty String() = %q, want {}", got)
	}
}

func TestDimensionKey_DuplicateNameLastWins(t *testing.T) {
	k := KeyOf("app", "A", "app", "B")
	if v, _ := k.Get("app"); v != "B" {
		t.Errorf("Get(app) = %q, want B", v)
	}
	if n := len(k.Labels()); n != 1 {
		t.Errorf("Labels len = %d, want 1", n)
	}
}

func TestDimensionKey_Project(t *testing.T) {
	k := KeyOf("app", "A", "uid", "7", "state", "on")
	p := k.Project("app", "missing")
	if p != KeyOf("app", "A") {
		t.Errorf("Project = %q, want app=A", p)
	}
	if !k.Project().IsEmpty() {
		t.Error("Project() with no names should be empty")
	}
}

func TestDimensionKey_SeparatorBytesInValues(t *testing.T) {
	tests := []struct {
		name string
		a, b DimensionKey
	}{
		{"record separators", NewDimensionKey(map[string]string{"app": "A\x1euid\x1f1"}), KeyOf("app", "A", "uid", "1")},
		{"display separators", KeyOf("app", "A,uid=1"), KeyOf("app", "A", "uid", "1")},
		{"quotes", KeyOf("app", `A"`, "uid", "1"), KeyOf("app", "A", `"uid`, "1")},
		{"name into value", KeyOf("ab", "c"), KeyOf("a", "bc")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.a == tc.b {
				t.Fatalf("distinct label sets compare equal: %v", tc.a)
			}
			if tc.a.Compare(tc.b) == 0 {
				t.Errorf("Compare = 0 for distinct keys")
			}
		})
	}
}

func TestDimensionKey_LabelsRoundTrip(t *testing.T) {
	in := []Label{{Name: "app", Value: "A\x1euid\x1f1"}, {Name: "path", Value: `C:\tmp "x"`}, {Name: "z", Value: ""}}
	k := KeyOf(in[2].Name, in[2].Value, in[0].Name, in[0].Value, in[1].Name, in[1].Value)

	got := k.Labels()
	if len(got) != len(in) {
		t.Fatalf("Labels = %v, want %v", got, in)
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("Labels[%d] = %+v, want %+v", i, got[i], in[i])
		}
	}
	if KeyOf(labelPairs(got)...) != k {
		t.Error("key rebuilt from Labels differs")
	}
}

func labelPairs(ls []Label) []string {
	out := make([]string, 0, 2*len(ls))
	for _, l := range ls {
		out = append(out, l.Name, l.Value)
	}
	return out
}
