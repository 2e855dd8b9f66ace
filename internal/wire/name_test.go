package wire

import "testing"

func TestLongestSuffixMatch(t *testing.T) {
	origins := []LowerName{
		Name("com.").Lower(),
		NewName("example.com").Lower(),
		NewName("sub.example.com").Lower(),
	}

	name := NewName("www.sub.example.com").Lower()
	best, ok := LongestSuffixMatch(name, origins)
	if !ok {
		t.Fatal("expected a match")
	}
	if best != NewName("sub.example.com").Lower() {
		t.Fatalf("expected longest match sub.example.com., got %s", best)
	}
}

func TestLongestSuffixMatch_NoMatch(t *testing.T) {
	origins := []LowerName{NewName("example.org").Lower()}
	_, ok := LongestSuffixMatch(NewName("example.com").Lower(), origins)
	if ok {
		t.Fatal("expected no match")
	}
}

func TestCompareCanonical(t *testing.T) {
	cases := []struct {
		a, b Name
		want int
	}{
		{NewName("a.example.com"), NewName("b.example.com"), -1},
		{NewName("example.com"), NewName("example.com"), 0},
		{NewName("z.example.com"), NewName("a.example.com"), 1},
		{NewName("example.com"), NewName("a.example.com"), -1}, // fewer labels sorts first when equal suffix
	}
	for _, c := range cases {
		got := CompareCanonical(c.a, c.b)
		if (got < 0) != (c.want < 0) || (got > 0) != (c.want > 0) || (got == 0) != (c.want == 0) {
			t.Errorf("CompareCanonical(%q, %q) = %d, want sign of %d", c.a, c.b, got, c.want)
		}
	}
}

func TestIsSubdomainOf(t *testing.T) {
	if !NewName("www.example.com").Lower().IsSubdomainOf(NewName("example.com").Lower()) {
		t.Fatal("www.example.com. should be a subdomain of example.com.")
	}
	if NewName("example.org").Lower().IsSubdomainOf(NewName("example.com").Lower()) {
		t.Fatal("example.org. should not be a subdomain of example.com.")
	}
	if !NewName("anything.at.all").Lower().IsSubdomainOf(".") {
		t.Fatal("everything is a subdomain of root")
	}
}
