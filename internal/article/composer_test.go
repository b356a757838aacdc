package article

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func articleHTML(title string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<article>\n  <h1>%s</h1>\n  <div class=\"content\">\n", title)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "    <section class=\"point\">\n      <h2>%d. Point %d</h2>\n      <p>Do thing %d.   It helps.</p>\n    </section>\n", i, i, i)
	}
	b.WriteString("  </div>\n  <div class=\"hashtags\"><span>#Money</span></div>\n</article>")
	return b.String()
}

func TestExtractTitles(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"numbered only", "Here you go:\n1. Ten Ways  \n\n2. Five Tips\r\nEnjoy!", []string{"1. Ten Ways", "2. Five Tips"}},
		{"indented lines dropped", "  1. Indented\n3. Kept", []string{"3. Kept"}},
		{"no dot", "1 Missing dot\n12. Twelve", []string{"12. Twelve"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractTitles(tc.raw)
			if len(got) != len(tc.want) {
				t.Fatalf("ExtractTitles() = %q, want %q", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("title[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"1. **5 Money Habits**":  "5 Money Habits",
		`2. "Save Big"`:          "Save Big",
		"Garden Basics":          "Garden Basics",
		"3. *Top Ten* Ideas":     "Top Ten Ideas",
		"  4.  “Quoted Title”  ": "Quoted Title",
	}
	for in, want := range cases {
		if got := CleanTitle(in); got != want {
			t.Errorf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDerive(t *testing.T) {
	cases := []struct {
		title   string
		display string
		count   int
	}{
		{"5 Ways to Save Money!", "Ways to Save Money", 5},
		{"Top Three Tips", "Tips", 3},
		{"The Seven Habits", "Habits", 7},
		{"Garden Basics", "Garden Basics", 5},
		{"2 Rules", "Rules", 3},
		{"1. 5 Money Habits", "Money Habits", 5},
		{"**10 Easy Recipes** You Won't Believe!", "Easy Recipes You Won't Believe", 10},
		{"The Top 8 Hikes", "Hikes", 8},
		{"Top Tips for Beginners", "Tips for Beginners", 5},
		{"one Simple Trick", "Simple Trick", 3},
		{"15 Ways to Save Money", "Ways to Save Money", 15},
		{"50 Gift Ideas", "Gift Ideas", 50},
	}
	c := Composer{}
	for _, tc := range cases {
		display, count := c.Derive(tc.title)
		if display != tc.display || count != tc.count {
			t.Errorf("Derive(%q) = (%q, %d), want (%q, %d)", tc.title, display, count, tc.display, tc.count)
		}
	}
}

func TestDeriveWithCap(t *testing.T) {
	c := Composer{MaxSections: 12}
	if _, count := c.Derive("50 Gift Ideas"); count != 12 {
		t.Fatalf("count = %d, want 12", count)
	}
	if _, count := c.Derive("2 Rules"); count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestComposePromptCarriesCountAndTitle(t *testing.T) {
	comp := Composer{MaxSections: 12}.Compose("Top Three Tips")
	if comp.SectionCount != 3 || comp.DisplayTitle != "Tips" {
		t.Fatalf("unexpected composition %+v", comp)
	}
	if !strings.Contains(comp.Prompt, "Generate EXACTLY 3 tips/points") {
		t.Errorf("prompt missing section count:\n%s", comp.Prompt)
	}
	if !strings.Contains(comp.Prompt, "<h1>Tips</h1>") {
		t.Errorf("prompt missing title heading:\n%s", comp.Prompt)
	}
}

func TestComposeKeywordFixesCount(t *testing.T) {
	comp := Composer{}.ComposeKeyword("budgeting", "The Seven Habits")
	if comp.SectionCount != KeywordSections {
		t.Fatalf("SectionCount = %d, want %d", comp.SectionCount, KeywordSections)
	}
	if comp.Keyword != "budgeting" || !strings.Contains(comp.Prompt, `"budgeting"`) {
		t.Fatalf("keyword not carried into prompt: %+v", comp)
	}
}

func TestValidateAcceptsExactCount(t *testing.T) {
	raw := "Sure! Here is your article:\n```html\n" + articleHTML("Money Habits", 5) + "\n```\nHope it helps."
	html, err := Composer{}.Validate(raw, 5)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !strings.HasPrefix(html, "<article>") || !strings.HasSuffix(html, "</article>") {
		t.Fatalf("expected bare article element, got %q", html)
	}
	if strings.Contains(html, "```") || strings.Contains(html, "Hope it helps") {
		t.Fatalf("surrounding text not stripped: %q", html)
	}
	if strings.Contains(html, "  ") {
		t.Errorf("whitespace runs not collapsed: %q", html)
	}
	if !strings.Contains(html, "</h2>\n") {
		t.Errorf("expected line break after closing tags: %q", html)
	}
	sections, err := Sections(html)
	if err != nil || len(sections) != 5 {
		t.Fatalf("Sections() = %d, %v; want 5 sections", len(sections), err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected int
		reason   string
	}{
		{"no article", "<h1>Title</h1><div class=\"content\"></div>", 3, "no <article>"},
		{"unclosed", "<article><h1>T</h1>", 3, "no <article>"},
		{"no heading", "<article><div class=\"content\"><section class=\"point\"></section></div></article>", 1, "missing <h1>"},
		{"no container", "<article><h1>T</h1><section class=\"point\"></section></article>", 1, "missing content container"},
		{"too few", articleHTML("T", 4), 5, "expected 5 sections, found 4"},
		{"too many", articleHTML("T", 6), 5, "expected 5 sections, found 6"},
		{"trailing article", articleHTML("Money Habits", 5) + "\nBonus:\n<article><section class=\"point\"><h2>6. Extra</h2><p>More.</p></section></article>", 5, "expected 5 sections, found 6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Composer{}.Validate(tc.raw, tc.expected)
			var malformed *MalformedArticleError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedArticleError, got %v", err)
			}
			if !strings.Contains(malformed.Reason, tc.reason) {
				t.Errorf("Reason = %q, want it to contain %q", malformed.Reason, tc.reason)
			}
			if malformed.Raw != tc.raw {
				t.Errorf("Raw not preserved")
			}
		})
	}
}

func TestSectionExcerpt(t *testing.T) {
	got := SectionExcerpt(`<section class="point"><h2>1. Track</h2><p>Write it &amp; review.</p></section>`)
	if got != "1. Track Write it & review." {
		t.Fatalf("SectionExcerpt() = %q", got)
	}
	long := "<p>" + strings.Repeat("é", 300) + "</p>"
	if n := len([]rune(SectionExcerpt(long))); n != 200 {
		t.Fatalf("excerpt length = %d, want 200", n)
	}
}
