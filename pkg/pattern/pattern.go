// Package pattern finds uses of a highlighted pattern in a corpus of
// sentences. An instructor highlights a span of pedagogical interest inside a
// sentence; this package searches the stored corpus for other uses of that
// span, either exactly or fuzzily.
//
// Three exact modes interpret the highlighted span differently:
//
//   - ModeSentence: the span is matched as a plain substring.
//   - ModeWords: the span must align with word boundaries on both sides,
//     so it matches one or more full contiguous words.
//   - ModeMorphemes: the span must be bound to adjacent word material on at
//     least one side, matching contiguous morphemes rather than free words.
//
// Fuzzy matching scores each corpus line with a partial ratio (best window
// of the line against the pattern) and a token-set ratio, admitting the
// line when either reaches the threshold.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Mode selects how the highlighted span is interpreted as a pattern.
type Mode string

const (
	ModeSentence  Mode = "sentence"
	ModeWords     Mode = "words"
	ModeMorphemes Mode = "morphemes"
)

// Result labels for reporting.
const (
	ResultMatch        = "MATCH"
	ResultPartialMatch = "PARTIAL MATCH"
	ResultNoMatch      = "NO MATCH"
)

// FuzzyThreshold is the minimum partial or token-set ratio (0-100) for a
// fuzzy match.
const FuzzyThreshold = 65

var (
	ErrEmptyPattern   = errors.New("pattern: highlighted span is empty")
	ErrInvalidIndices = errors.New("pattern: invalid span indices")
	ErrWildcard       = errors.New("pattern: refusing to search for bare wildcard")
)

// Request describes one search: the sentence in which the span was
// highlighted, the span's rune offsets (begin inclusive, end exclusive),
// the interpretation mode, and whether fuzzy matching applies.
type Request struct {
	Text  string
	Begin int
	End   int
	Mode  Mode
	Fuzzy bool
}

// Match is one corpus line where the pattern was found. Spans holds the
// byte offsets of each occurrence in the normalized line; Score is the
// fuzzy ratio that admitted the line (100 for exact matches).
type Match struct {
	Sentence string   `json:"sentence"`
	Spans    [][2]int `json:"spans,omitempty"`
	Score    int      `json:"score"`
	Result   string   `json:"result"`
}

// normalize lowercases and trims a line the same way highlighted text is
// normalized, so matching is case-insensitive on both sides.
func normalize(s string) string {
	return strings.ToLower(strings.TrimRight(s, "\n"))
}

// span extracts the highlighted rune range from the request text.
func (r Request) span() (string, error) {
	runes := []rune(normalize(r.Text))
	if r.Begin < 0 || r.End > len(runes) || r.Begin >= r.End {
		return "", fmt.Errorf("%w: [%d,%d) over %d runes", ErrInvalidIndices, r.Begin, r.End, len(runes))
	}
	substr := string(runes[r.Begin:r.End])
	if strings.TrimSpace(substr) == "" {
		return "", ErrEmptyPattern
	}
	if strings.TrimSpace(substr) == "*" {
		return "", ErrWildcard
	}
	return substr, nil
}

// compile turns the highlighted span into the mode's regular expression.
func (r Request) compile() (*regexp.Regexp, error) {
	substr, err := r.span()
	if err != nil {
		return nil, err
	}
	quoted := regexp.QuoteMeta(substr)

	var expr string
	switch r.Mode {
	case ModeWords:
		expr = `\b` + quoted + `\b`
	case ModeMorphemes:
		expr = `\B` + quoted + `|` + quoted + `\B`
	case ModeSentence, "":
		expr = quoted
	default:
		return nil, fmt.Errorf("pattern: unknown mode %q", r.Mode)
	}
	return regexp.Compile(`(?i)` + expr)
}

// Find searches the corpus for the request's pattern and returns every
// matching line in corpus order.
func Find(corpus []string, r Request) ([]Match, error) {
	if r.Fuzzy {
		substr, err := r.span()
		if err != nil {
			return nil, err
		}
		return fuzzyFind(corpus, substr), nil
	}

	re, err := r.compile()
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, line := range corpus {
		norm := normalize(line)
		locs := re.FindAllStringIndex(norm, -1)
		if len(locs) == 0 {
			continue
		}
		spans := make([][2]int, 0, len(locs))
		for _, loc := range locs {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
		matches = append(matches, Match{
			Sentence: norm,
			Spans:    spans,
			Score:    100,
			Result:   ResultMatch,
		})
	}
	return matches, nil
}

// fuzzyFind admits lines whose partial ratio or token-set ratio against the
// pattern reaches FuzzyThreshold.
func fuzzyFind(corpus []string, pattern string) []Match {
	var matches []Match
	for _, line := range corpus {
		norm := normalize(line)

		score := partialRatio(pattern, norm)
		if score < FuzzyThreshold {
			if ts := tokenSetRatio(pattern, norm); ts > score {
				score = ts
			}
		}
		if score < FuzzyThreshold {
			continue
		}

		result := ResultPartialMatch
		if score == 100 {
			result = ResultMatch
		}
		matches = append(matches, Match{
			Sentence: norm,
			Score:    score,
			Result:   result,
		})
	}
	return matches
}

// ratio is the normalized Levenshtein similarity of two strings, 0-100.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (longer - dist) * 100 / longer
}

// partialRatio slides a window the length of the shorter string across the
// longer one and keeps the best ratio, so a pattern embedded in a longer
// line still scores high.
func partialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}

	best := 0
	for i := 0; i+len(ra) <= len(rb); i++ {
		score := ratio(string(ra), string(rb[i:i+len(ra)]))
		if score > best {
			best = score
		}
		if best == 100 {
			break
		}
	}
	return best
}

// tokenSetRatio compares the sorted unique tokens of both strings, which
// makes word order and repetition irrelevant.
func tokenSetRatio(a, b string) int {
	return ratio(tokenSet(a), tokenSet(b))
}

func tokenSet(s string) string {
	fields := strings.Fields(s)
	seen := make(map[string]struct{}, len(fields))
	uniq := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		uniq = append(uniq, f)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, " ")
}
