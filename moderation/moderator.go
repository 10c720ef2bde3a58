// Package moderation censors forbidden words in outbound text messages.
// Matching runs over a normalized view of the text (lowercased, leet speak
// folded, punctuation stripped) while the mask is applied to the original
// runes, so spacing and surrounding text survive.
package moderation

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	cherrors "chat-sync/errors"
)

// leetFold maps common leet speak substitutions back to their letters
// before matching.
var leetFold = map[rune]rune{
	'4': 'a', '@': 'a',
	'3': 'e', '€': 'e',
	'1': 'i', '!': 'i', '|': 'i',
	'0': 'o',
	'5': 's', '$': 's',
}

// Moderator holds a compiled Aho-Corasick automaton over the normalized
// dictionary. Safe for concurrent use; the automaton is immutable after
// construction.
type Moderator struct {
	matcher *goahocorasick.Machine
	mask    rune
	log     *slog.Logger
}

// NewModerator compiles the dictionary. Empty dictionaries are rejected:
// a censor with nothing to match is a configuration mistake.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	if len(words) == 0 {
		return nil, cherrors.Validation("censor dictionary is empty")
	}

	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if norm := normalize([]rune(word)); len(norm.runes) > 0 {
			patterns = append(patterns, norm.runes)
		}
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: machine, mask: mask, log: log}, nil
}

// LoadWords reads one dictionary word per line, skipping blanks.
func LoadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readWords(f)
}

func readWords(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if word := strings.TrimSpace(scanner.Text()); word != "" {
			words = append(words, word)
		}
	}
	return words, scanner.Err()
}

// Censor masks every dictionary hit in the original text and reports
// whether anything was masked.
func (m *Moderator) Censor(original string) (string, bool) {
	mapping := normalize([]rune(original))
	if len(mapping.runes) == 0 {
		return original, false
	}

	spans := m.matcher.MultiPatternSearch(mapping.runes, false)
	if len(spans) == 0 {
		return original, false
	}

	masked := []rune(original)
	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		// Mask the full original span, including any noise characters the
		// normalization skipped between the matched runes.
		from := mapping.origIdx[start]
		to := mapping.origIdx[end-1] + 1
		for i := from; i < to; i++ {
			masked[i] = m.mask
		}
	}
	return string(masked), true
}

// textMapping is the normalized view plus, per normalized rune, the index
// of the original rune it came from.
type textMapping struct {
	runes   []rune
	origIdx []int
}

func normalize(input []rune) textMapping {
	out := textMapping{
		runes:   make([]rune, 0, len(input)),
		origIdx: make([]int, 0, len(input)),
	}
	for i, r := range input {
		if folded, ok := leetFold[r]; ok {
			r = folded
		} else if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(r))
		out.origIdx = append(out.origIdx, i)
	}
	return out
}
