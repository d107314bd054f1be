// Package dedup implements the content and topic signature functions and
// the anti-repeat policy (spec.md §4.5): pure functions applied at
// candidate-ingest time and at enqueue time, respectively.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize implements spec.md §4.5's normalization: NFKC -> lowercase ->
// strip all non-alphanumeric except whitespace -> collapse whitespace.
func Normalize(s string) string {
	nfkc := norm.NFKC.String(s)
	lower := strings.ToLower(nfkc)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ContentSignature is SHA-1 hex of the normalized UTF-8 bytes. Empty text
// yields an empty signature (no dedup), per spec.md §4.5.
func ContentSignature(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ChooseSignatureSource picks the text source per spec.md §4.5's priority:
// transcript if present, else title+caption, else title.
func ChooseSignatureSource(transcript, title, caption string) string {
	if strings.TrimSpace(transcript) != "" {
		return transcript
	}
	if strings.TrimSpace(caption) != "" {
		return title + " " + caption
	}
	return title
}

const maxTopicTags = 7

// TopicTags extracts at most 7 short phrases by spec.md §4.5's priority:
// script-analysis theses -> explicit keywords -> script-data keywords ->
// fallback tokens from title+caption (words longer than 2 chars, first
// unique 5).
func TopicTags(theses, keywords, scriptDataKeywords []string, title, caption string) []string {
	for _, candidates := range [][]string{theses, keywords, scriptDataKeywords} {
		if tags := firstNNonEmpty(candidates, maxTopicTags); len(tags) > 0 {
			return tags
		}
	}
	return fallbackTokens(title + " " + caption)
}

func firstNNonEmpty(candidates []string, n int) []string {
	out := make([]string, 0, n)
	for _, c := range candidates {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		out = append(out, c)
		if len(out) == n {
			break
		}
	}
	return out
}

func fallbackTokens(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool, 5)
	out := make([]string, 0, 5)
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if len(w) <= 2 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == 5 {
			break
		}
	}
	return out
}

// TopicSignature is SHA-1 of "|".join(sorted(dedup(lower(tag)))), per
// spec.md §4.5.
func TopicSignature(tags []string) string {
	seen := make(map[string]bool, len(tags))
	unique := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		unique = append(unique, t)
	}
	sort.Strings(unique)
	joined := strings.Join(unique, "|")
	sum := sha1.Sum([]byte(joined))
	return hex.EncodeToString(sum[:])
}

// DefaultAntiRepeatWindow is the anti-repeat window N chosen for projects
// whose policy document does not specify anti_repeat_window (SPEC_FULL.md §3,
// Open Question (c)). Nothing in this module reads a project's policy or
// applies this default: there is no enqueue path here.
const DefaultAntiRepeatWindow = 20

// AntiRepeatViolation reports whether topicSig appears among the given
// recent signatures, per spec.md §4.5's anti-repeat policy.
func AntiRepeatViolation(topicSig string, recentSignatures []string) bool {
	if topicSig == "" {
		return false
	}
	for _, s := range recentSignatures {
		if s == topicSig {
			return true
		}
	}
	return false
}
