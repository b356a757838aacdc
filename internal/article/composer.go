package article

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	MinSections     = 3
	DefaultSections = 5
	// KeywordSections is the fixed section count of the keyword flow.
	KeywordSections = 5
)

var cardinals = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var (
	leadingTop    = regexp.MustCompile(`(?i)^(?:the\s+)?top\s+`)
	leadingNumber = regexp.MustCompile(`^(\d+)\s+`)
	leadingWord   = regexp.MustCompile(`(?i)^(?:the\s+)?(one|two|three|four|five|six|seven|eight|nine|ten)\s+`)

	codeFence    = regexp.MustCompile("```[a-zA-Z]*")
	articleOpen  = regexp.MustCompile(`(?i)<article[\s>]`)
	articleClose = regexp.MustCompile(`(?i)</article\s*>`)
	spaceRun     = regexp.MustCompile(`\s+`)
	closingTag   = regexp.MustCompile(`(</[a-zA-Z][a-zA-Z0-9]*>)\s*`)
)

// MalformedArticleError reports model output that does not match the
// article schema. Raw holds the full response for diagnostics.
type MalformedArticleError struct {
	Reason string
	Raw    string
}

func (e *MalformedArticleError) Error() string {
	return "Invalid article format received: " + e.Reason
}

// Composition is the prompt and target shape for one article.
type Composition struct {
	DisplayTitle string
	SectionCount int
	Keyword      string
	Prompt       string
}

// Composer builds article prompts and checks the HTML that comes back.
type Composer struct {
	// MaxSections caps the derived section count. Zero means no cap.
	MaxSections int
}

// Compose derives the section count and display title from a chosen title
// and builds the generation prompt.
func (c Composer) Compose(title string) Composition {
	display, count := c.Derive(title)
	return Composition{
		DisplayTitle: display,
		SectionCount: count,
		Prompt:       articlePrompt(display, count, ""),
	}
}

// ComposeKeyword builds the prompt for the keyword flow, which always asks
// for KeywordSections sections.
func (c Composer) ComposeKeyword(keyword, title string) Composition {
	display, _ := c.Derive(title)
	return Composition{
		DisplayTitle: display,
		SectionCount: KeywordSections,
		Keyword:      keyword,
		Prompt:       articlePrompt(display, KeywordSections, keyword),
	}
}

// Derive returns the display title and section count for a title such as
// "Top Three Tips" (3, "Tips") or "5 Ways to Save Money!" (5, "Ways to Save Money").
func (c Composer) Derive(title string) (string, int) {
	text := CleanTitle(title)
	if i := strings.Index(text, "!"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)

	count := DefaultSections
	display := text
	rest := leadingTop.ReplaceAllString(text, "")
	if m := leadingNumber.FindStringSubmatch(rest); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			count = n
		}
		display = rest[len(m[0]):]
	} else if m := leadingWord.FindStringSubmatch(rest); m != nil {
		count = cardinals[strings.ToLower(m[1])]
		display = rest[len(m[0]):]
	}
	display = strings.TrimSpace(leadingTop.ReplaceAllString(display, ""))
	if display == "" {
		display = text
	}

	if count < MinSections {
		count = MinSections
	}
	if c.MaxSections >= MinSections && count > c.MaxSections {
		count = c.MaxSections
	}
	return display, count
}

// Validate extracts the <article> element from a model response and checks
// that it has a heading, a content container and exactly expected sections.
// The returned HTML has its whitespace normalized.
func (c Composer) Validate(raw string, expected int) (string, error) {
	text := codeFence.ReplaceAllString(raw, "")

	open := articleOpen.FindStringIndex(text)
	closes := articleClose.FindAllStringIndex(text, -1)
	if open == nil || len(closes) == 0 || closes[len(closes)-1][0] < open[0] {
		return "", &MalformedArticleError{Reason: "no <article> element", Raw: raw}
	}
	fragment := text[open[0]:closes[len(closes)-1][1]]

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", &MalformedArticleError{Reason: "unparseable HTML: " + err.Error(), Raw: raw}
	}
	root := doc.Selection
	if root.Find("h1").Length() == 0 {
		return "", &MalformedArticleError{Reason: "missing <h1> heading", Raw: raw}
	}
	if root.Find(".content").Length() == 0 {
		return "", &MalformedArticleError{Reason: "missing content container", Raw: raw}
	}
	if n := root.Find("section.point").Length(); n != expected {
		return "", &MalformedArticleError{
			Reason: fmt.Sprintf("expected %d sections, found %d", expected, n),
			Raw:    raw,
		}
	}

	return normalizeHTML(fragment), nil
}

func normalizeHTML(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = closingTag.ReplaceAllString(s, "$1\n")
	return strings.TrimSpace(s)
}

// Sections returns the outer HTML of every section marker in document order.
func Sections(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var sections []string
	var outerErr error
	doc.Find("section.point").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, err := goquery.OuterHtml(s)
		if err != nil {
			outerErr = err
			return false
		}
		sections = append(sections, h)
		return true
	})
	return sections, outerErr
}

func articlePrompt(title string, count int, keyword string) string {
	focus := ""
	if keyword != "" {
		focus = fmt.Sprintf("\nFocus keyword: %q. Work it naturally into the heading and at least two of the points.\n", keyword)
	}
	return fmt.Sprintf(`Create a Pinterest article about: "%[1]s"
%[3]s
Generate EXACTLY %[2]d tips/points (no more, no less) in this HTML format:

<article>
  <h1>%[1]s</h1>

  <div class="content">
    <!-- Generate exactly %[2]d sections, numbered 1 through %[2]d -->
    <section class="point">
      <h2>1. First Point</h2>
      <p>Detailed explanation in 2-3 engaging sentences. Make it specific and actionable.</p>
    </section>
    <!-- Continue until you have exactly %[2]d points -->
  </div>

  <div class="hashtags">
    <span>#Inspiration</span> <span>#SelfDevelopment</span> <span>#PersonalGrowth</span>
  </div>
</article>

Critical Requirements:
1. You MUST generate exactly %[2]d points - no more, no less
2. Number each point sequentially from 1 to %[2]d
3. Each point must have a clear title starting with its number
4. Each point must have 2-3 detailed, actionable sentences
5. Use proper HTML tags as shown above
6. Include relevant hashtags at the end`, title, count, focus)
}

// TitlesPrompt asks for a numbered list of pin titles about topic.
func TitlesPrompt(topic string) string {
	return fmt.Sprintf(`Generate 5 engaging, attention-grabbing, and SEO-friendly Pinterest pin titles for the topic: %s.
Use numbers where appropriate and aim for catchy, click-worthy phrasing.
Include playful or surprising elements to entice readers (e.g., "You Won't Believe #3!" or "Even Beginners Can Nail #7!").
Keep the titles concise and highlight benefits or emotions where possible.
Format the output as a numbered list.`, topic)
}
