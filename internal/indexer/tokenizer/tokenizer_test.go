package tokenizer

import (
	"reflect"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercase", "Indomaret CILANDAK", "indomaret cilandak"},
		{"punctuation becomes space", "Jl. Fatmawati, No.12", "jl fatmawati no 12"},
		{"hyphen kept", "Pondok-Labu", "pondok-labu"},
		{"whitespace collapsed", "  a \t\n b  ", "a b"},
		{"fullwidth folded", "ＡＢＣ", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeStrict(t *testing.T) {
	got := Normalize("Indomaret Jl. Raya Cilandak KKO RT 05 / RW 02 Kel. Cilandak Timur", Strict)
	want := []string{"indomaret", "raya", "cilandak", "kko", "05", "02", "cilandak", "timur"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizePermissiveKeepsAddressWords(t *testing.T) {
	got := Normalize("alfamart di jalan kemang", Permissive)
	want := []string{"alfamart", "jalan", "kemang"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	strict := Normalize("alfamart di jalan kemang", Strict)
	if !reflect.DeepEqual(strict, []string{"alfamart", "kemang"}) {
		t.Errorf("strict policy should drop jalan, got %v", strict)
	}
}

func TestNormalizeDropsShortTokens(t *testing.T) {
	got := Normalize("a b cd e", Permissive)
	if !reflect.DeepEqual(got, []string{"cd"}) {
		t.Errorf("got %v, want [cd]", got)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", ".,;", "di dan"} {
		got := Query(in)
		if got == nil || len(got) != 0 {
			t.Errorf("Query(%q) = %#v, want empty non-nil slice", in, got)
		}
	}
}

func TestPolicies(t *testing.T) {
	if Strict.Size() <= Permissive.Size() {
		t.Errorf("strict policy (%d) should be larger than permissive (%d)", Strict.Size(), Permissive.Size())
	}
	for _, w := range []string{"yang", "di", "dan", "ke", "dari", "ini", "itu", "dengan"} {
		if !Strict.IsStopWord(w) || !Permissive.IsStopWord(w) {
			t.Errorf("%q should be a stop-word under both policies", w)
		}
	}
	if Permissive.IsStopWord("jalan") {
		t.Error("permissive policy must keep jalan")
	}
}

func TestDocumentText(t *testing.T) {
	got := DocumentText("Indomaret Cipete", " ", "Jl. Cipete Raya", "Cipete Selatan", "", "Indomaret")
	want := "Indomaret Cipete Jl. Cipete Raya Cipete Selatan Indomaret"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
