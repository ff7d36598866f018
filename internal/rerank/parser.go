package rerank

import (
	"regexp"
	"strconv"
	"strings"
)

// Response parsing never fails: model output that defies every family
// heuristic still degrades to a best-effort numeric estimate, because one
// unparseable response must not abort a whole batch.

// parseFunc attempts to extract a relevance score from raw model output. It
// reports ok=false when the output carries no usable signal for this parser,
// letting the next parser in the chain run.
type parseFunc func(output string) (float64, bool)

// ParseScore normalizes free-text model output to a relevance score in
// [0,1]. Empty output means "no information" and scores 0.0; otherwise the
// family's parser chain runs in order and the first hit wins. The generic
// parser terminates every chain and always produces a value.
func (f ModelFamily) ParseScore(output string) float64 {
	if strings.TrimSpace(output) == "" {
		return 0.0
	}
	for _, parse := range f.parserChain() {
		if score, ok := parse(output); ok {
			return clampScore(score)
		}
	}
	return 0.5
}

func (f ModelFamily) parserChain() []parseFunc {
	switch f {
	case FamilyBGE:
		return []parseFunc{parseBGE, parseGeneric}
	case FamilyQwen:
		return []parseFunc{parseQwen, parseGeneric}
	default:
		return []parseFunc{parseGeneric}
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseBGE reads a bare relevance number, rescaling 1-10 and percentage
// style answers into [0,1]. Without a number it falls back to coarse
// keyword sentiment, or defers to the generic parser.
func parseBGE(output string) (float64, bool) {
	if m := numberPattern.FindString(output); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return rescale(v), true
		}
	}

	l := strings.ToLower(output)
	switch {
	// Negative markers first: "irrelevant" contains "relevant".
	case strings.Contains(l, "irrelevant") || strings.Contains(l, "low"):
		return 0.2, true
	case strings.Contains(l, "high") || strings.Contains(l, "relevant"):
		return 0.8, true
	}

	return 0, false
}

var (
	qwenPositive    = regexp.MustCompile(`(?i)\b(yes|relevant|positive|match)\b`)
	qwenNegative    = regexp.MustCompile(`(?i)\b(no|irrelevant|negative|not relevant)\b`)
	qwenIntensifier = regexp.MustCompile(`(?i)\b(completely|totally|not at all)\b`)
)

// parseQwen grades a yes/no judgment. Confidence scales with how elaborate
// and how repetitive the positive answer is; negative answers sink further
// when intensified. When both marker classes appear, whichever comes first
// wins, weakly.
func parseQwen(output string) (float64, bool) {
	posLoc := qwenPositive.FindStringIndex(output)
	negLoc := qwenNegative.FindStringIndex(output)

	switch {
	case posLoc != nil && negLoc != nil:
		if posLoc[0] < negLoc[0] {
			return 0.6, true
		}
		return 0.4, true

	case posLoc != nil:
		if len(output) > 100 {
			if len(qwenPositive.FindAllString(output, -1)) > 1 {
				return 0.95, true
			}
			return 0.85, true
		}
		return 0.75, true

	case negLoc != nil:
		if qwenIntensifier.MatchString(output) {
			return 0.05, true
		}
		return 0.15, true
	}

	return 0, false
}

var (
	genericPositive = regexp.MustCompile(`(?i)\b(relevant|related|match|useful|important|yes|good)\b`)
	genericNegative = regexp.MustCompile(`(?i)\b(irrelevant|unrelated|useless|no|bad|pointless)\b`)
)

// parseGeneric is the terminal fallback: first numeric token with the same
// rescaling as BGE, then keyword counting around a neutral 0.5, then 0.5.
func parseGeneric(output string) (float64, bool) {
	if m := numberPattern.FindString(output); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err == nil {
			return rescale(v), true
		}
	}

	pos := len(genericPositive.FindAllString(output, -1))
	neg := len(genericNegative.FindAllString(output, -1))
	switch {
	case pos > neg:
		return 0.5 + 0.1*float64(pos), true
	case neg > pos:
		return 0.5 - 0.1*float64(neg), true
	}

	return 0.5, true
}

// rescale maps common score scales into [0,1]: values in (1,10] are read as
// a 1-10 scale, values above 10 as percentages.
func rescale(v float64) float64 {
	switch {
	case v > 10:
		v /= 100
	case v > 1:
		v /= 10
	}
	return clampScore(v)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
