package delimited

import (
	"errors"
	"strings"
)

// ErrNoDelimiter is returned by Sniff when no candidate delimiter fits the sample.
var ErrNoDelimiter = errors.New("delimited: could not determine delimiter")

// candidates in preference order.
var candidates = []byte{',', '\t', ';', '|'}

// Dialect describes how a delimited text is split into fields.
type Dialect struct {
	Delimiter rune

	// SkipInitialSpace drops spaces that directly follow a delimiter.
	SkipInitialSpace bool
}

// Name returns a printable name for the delimiter, for logs and reports.
func (d Dialect) Name() string {
	switch d.Delimiter {
	case ',':
		return "comma"
	case '\t':
		return "tab"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	case 0:
		return "none"
	}
	return string(d.Delimiter)
}

// Sniff detects the delimiter of sample, a handful of leading lines.
//
// Detection runs in two stages:
//   - Quote vote: every "-quoted span votes for the candidate directly before
//     its opening quote (one space allowed in between) or, failing that, the
//     candidate directly after its closing quote. Most votes wins; ties go to
//     the earlier candidate in preference order.
//   - Frequency: for each candidate, the per-line occurrence counts over the
//     non-empty lines form a histogram. Its mode, reduced by the number of
//     lines that disagree with it, must cover the sample at a consistency of
//     at least 0.9. One survivor wins; several resolve by preference order.
//
// Errors:
//   - ErrNoDelimiter if neither stage settles on a candidate.
func Sniff(sample []string) (Dialect, error) {
	if d, ok := guessFromQuotes(strings.Join(sample, "\n")); ok {
		return d, nil
	}
	if d, ok := guessFromFrequency(sample); ok {
		return d, nil
	}
	return Dialect{}, ErrNoDelimiter
}

func isCandidate(c byte) bool {
	for _, d := range candidates {
		if c == d {
			return true
		}
	}
	return false
}

func guessFromQuotes(text string) (Dialect, bool) {
	votes := make(map[byte]int, len(candidates))
	spaced := 0

	for i := 0; i < len(text); i++ {
		if text[i] != '"' {
			continue
		}
		j := strings.IndexByte(text[i+1:], '"')
		if j < 0 {
			break
		}
		closing := i + 1 + j

		before := i - 1
		space := false
		if before >= 0 && text[before] == ' ' {
			before--
			space = true
		}
		switch {
		case before >= 0 && isCandidate(text[before]):
			votes[text[before]]++
			if space {
				spaced++
			}
		case closing+1 < len(text) && isCandidate(text[closing+1]):
			votes[text[closing+1]]++
		}
		i = closing
	}

	best, bestVotes := byte(0), 0
	for _, c := range candidates {
		if votes[c] > bestVotes {
			best, bestVotes = c, votes[c]
		}
	}
	if bestVotes == 0 {
		return Dialect{}, false
	}
	return Dialect{Delimiter: rune(best), SkipInitialSpace: bestVotes == spaced}, true
}

// freqCount is one histogram bucket: how many lines contain the candidate
// exactly freq times.
type freqCount struct {
	freq  int
	lines int
}

func guessFromFrequency(sample []string) (Dialect, bool) {
	data := make([]string, 0, len(sample))
	for _, l := range sample {
		if l != "" {
			data = append(data, l)
		}
	}
	if len(data) == 0 {
		return Dialect{}, false
	}

	modes := make(map[byte]freqCount, len(candidates))
	for _, c := range candidates {
		if m, ok := adjustedMode(data, c); ok {
			modes[c] = m
		}
	}

	total := float64(len(data))
	accepted := make(map[byte]bool, len(modes))
	for consistency := 1.0; len(accepted) == 0 && consistency >= 0.9; consistency -= 0.01 {
		for c, m := range modes {
			if m.freq > 0 && m.lines > 0 && float64(m.lines)/total >= consistency {
				accepted[c] = true
			}
		}
	}

	for _, c := range candidates {
		if !accepted[c] {
			continue
		}
		delim := string(c)
		skip := strings.Count(data[0], delim) == strings.Count(data[0], delim+" ")
		return Dialect{Delimiter: rune(c), SkipInitialSpace: skip}, true
	}
	return Dialect{}, false
}

// adjustedMode returns the most common per-line count of c, with its line
// tally reduced by every line that has a different count. The first bucket
// seen wins ties. ok is false when c never occurs.
func adjustedMode(data []string, c byte) (freqCount, bool) {
	var hist []freqCount
	for _, line := range data {
		f := strings.Count(line, string(c))
		found := false
		for i := range hist {
			if hist[i].freq == f {
				hist[i].lines++
				found = true
				break
			}
		}
		if !found {
			hist = append(hist, freqCount{freq: f, lines: 1})
		}
	}

	if len(hist) == 1 {
		if hist[0].freq == 0 {
			return freqCount{}, false
		}
		return hist[0], true
	}

	mode := 0
	for i := 1; i < len(hist); i++ {
		if hist[i].lines > hist[mode].lines {
			mode = i
		}
	}
	m := hist[mode]
	for i, h := range hist {
		if i != mode {
			m.lines -= h.lines
		}
	}
	return m, true
}
