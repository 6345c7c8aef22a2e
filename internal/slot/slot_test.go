package slot

import "testing"

func TestIDLabelIsBareLetter(t *testing.T) {
	if got := A.Label(); got != "A" {
		t.Errorf("A.Label() = %q, want %q", got, "A")
	}
	if got := B.Label(); got != "B" {
		t.Errorf("B.Label() = %q, want %q", got, "B")
	}
}

func TestIDOther(t *testing.T) {
	if A.Other() != B {
		t.Errorf("A.Other() = %s, want B", A.Other())
	}
	if B.Other() != A {
		t.Errorf("B.Other() = %s, want A", B.Other())
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{in: "A", want: A},
		{in: "a", want: A},
		{in: "B", want: B},
		{in: "b", want: B},
		{in: "C", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %s", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestLayoutValidate(t *testing.T) {
	full := Layout{
		A: {ID: A, BootDev: "/dev/p1", RootDev: "/dev/p2"},
		B: {ID: B, BootDev: "/dev/p3", RootDev: "/dev/p5"},
	}
	if err := full.Validate(); err != nil {
		t.Errorf("complete layout rejected: %v", err)
	}

	missing := Layout{A: full[A]}
	if err := missing.Validate(); err == nil {
		t.Error("layout missing slot B accepted")
	}

	incomplete := Layout{
		A: full[A],
		B: {ID: B, BootDev: "/dev/p3"},
	}
	if err := incomplete.Validate(); err == nil {
		t.Error("layout with empty root device accepted")
	}
}
