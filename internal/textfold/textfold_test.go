package textfold

import "testing"

func TestFolderString(t *testing.T) {
	f := New()
	cases := []struct {
		in   string
		want string
	}{
		{in: "Ogof Ffynnon Ddû", want: "ogof ffynnon ddu"},
		{in: "GOUFFRE BERGER", want: "gouffre berger"},
		{in: "Höllloch", want: "hollloch"},
		{in: "Straße", want: "strasse"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := f.String(tc.in); got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestFolderReuse(t *testing.T) {
	f := New()
	first := f.String("Réseau Jean Bernard")
	second := f.String("Réseau Jean Bernard")
	if first != second || first != "reseau jean bernard" {
		t.Fatalf("expected repeat folds to agree, got %q and %q", first, second)
	}
}

func TestFolderJoin(t *testing.T) {
	got := New().Join("Dan yr Ogof", "", "  ", "Ŵyn")
	if got != "dan yr ogof\nwyn" {
		t.Fatalf("unexpected join %q", got)
	}
}
