package oeis

import (
	"reflect"
	"testing"
)

func TestParseANumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"A000045", 45, false},
		{"a45", 45, false},
		{" 45 ", 45, false},
		{"A0", 0, true},
		{"fib", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseANumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseANumber(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseANumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSequenceHelpers(t *testing.T) {
	s := Sequence{Number: 45, Data: "0, 1,1,2,,3", Offset: "0,4", Keyword: "core, nonn,nice"}

	if got := s.Values(); !reflect.DeepEqual(got, []string{"0", "1", "1", "2", "3"}) {
		t.Errorf("Values() = %v", got)
	}
	start, first := s.ParseOffset()
	if start != 0 || first != 4 {
		t.Errorf("ParseOffset() = (%d, %d), want (0, 4)", start, first)
	}
	if !s.HasKeyword("nonn") || s.HasKeyword("sign") {
		t.Errorf("HasKeyword mismatch for %v", s.Keywords())
	}
	if s.URL() != "https://oeis.org/A000045" {
		t.Errorf("URL() = %q", s.URL())
	}
}

func TestParseOffset_Defaults(t *testing.T) {
	start, first := Sequence{}.ParseOffset()
	if start != 0 || first != 1 {
		t.Errorf("ParseOffset() = (%d, %d), want (0, 1)", start, first)
	}
}

func TestSearchQueryPaging(t *testing.T) {
	q := NewSearchQuery("primes")
	q = q.NextPage(15).NextPage(15)
	if q.Start != 30 || q.Page(15) != 2 {
		t.Errorf("Start = %d page = %d, want 30 / 2", q.Start, q.Page(15))
	}
	q = q.PrevPage(15).PrevPage(15).PrevPage(15)
	if q.Start != 0 {
		t.Errorf("Start = %d, want clamp to 0", q.Start)
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  1, 2,\t3 \n"); got != "1, 2, 3" {
		t.Errorf("NormalizeQuery = %q", got)
	}
}

func TestParseBFileLine(t *testing.T) {
	if _, ok := ParseBFileLine("# header"); ok {
		t.Error("comment line parsed")
	}
	e, ok := ParseBFileLine("  100 354224848179261915075 ")
	if !ok || e.Index != 100 || e.Value != "354224848179261915075" {
		t.Errorf("ParseBFileLine = %+v, %v", e, ok)
	}
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in    string
		want  Category
		query string
	}{
		{"", CategoryAll, ""},
		{"all", CategoryAll, ""},
		{"best", CategoryBest, "keyword:nice"},
		{"Nice", CategoryBest, "keyword:nice"},
		{"more", CategoryNeedingTerms, "keyword:more"},
		{"recent", CategoryRecent, "keyword:new"},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if err != nil {
			t.Errorf("ParseCategory(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want || got.Query() != tt.query {
			t.Errorf("ParseCategory(%q) = %v (%q), want %v (%q)", tt.in, got, got.Query(), tt.want, tt.query)
		}
	}
	if _, err := ParseCategory("worst"); err == nil {
		t.Error("ParseCategory(worst) = nil error, want error")
	}
	if len(Categories()) != 4 {
		t.Errorf("Categories() len = %d, want 4", len(Categories()))
	}
}
