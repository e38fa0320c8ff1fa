// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package turn

import (
	"math"
	"regexp"
	"strings"
)

// PreflightIssueKind labels a defect found in a draft answer.
type PreflightIssueKind string

const (
	IssueMissingAnswer    PreflightIssueKind = "missing_answer"
	IssueContradiction    PreflightIssueKind = "contradiction"
	IssueUnverifiedClaim  PreflightIssueKind = "unverified_claim"
	IssueLanguageMismatch PreflightIssueKind = "language_mismatch"
)

// PreflightIssue is one detected defect.
type PreflightIssue struct {
	Kind   PreflightIssueKind `json:"kind"`
	Detail string             `json:"detail,omitempty"`
}

// PreflightResult is the outcome of checking a draft answer.
type PreflightResult struct {
	OK           bool             `json:"ok"`
	Issues       []PreflightIssue `json:"issues"`
	Score        float64          `json:"score"`
	CheckedItems []string         `json:"checkedItems"`
}

// maxPreflightItems caps how many obligations are checked when mustAddress
// is not supplied.
const maxPreflightItems = 10

var tokenSplitRe = regexp.MustCompile(`[^a-zA-ZäöüÄÖÜß0-9]+`)

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"been": true, "will": true, "should": true, "would": true, "could": true,
	"about": true, "there": true, "their": true, "what": true, "when": true,
	"where": true, "which": true, "please": true, "bitte": true, "nicht": true,
	"eine": true, "einen": true, "einem": true, "auch": true, "dass": true,
	"werden": true, "wurde": true, "sind": true, "haben": true, "sein": true,
	"make": true, "sure": true, "then": true, "them": true, "they": true,
	"into": true, "only": true, "more": true, "some": true, "such": true,
}

var positiveCompletion = []string{
	"done", "completed", "finished", "successfully", "erledigt", "abgeschlossen", "fertig",
}

var negativeCompletion = []string{
	"not done", "couldn't", "could not", "failed", "unable to", "nicht erledigt",
	"nicht möglich", "fehlgeschlagen", "konnte nicht",
}

var externalActionClaims = []string{
	"created ticket", "ticket created", "sent the", "committed", "pushed",
	"restarted", "deployed", "installed", "scheduled", "ticket angelegt",
	"neu gestartet", "eingetragen",
}

var evidenceMarkers = []string{
	"id:", "id ", "#", "status", "result", "ergebnis",
}

// PreflightAnswer checks a draft answer against the items it must address.
// mustAddress may be nil; callers then pass the blocking obligation
// descriptions for the active turn (capped at 10).
func PreflightAnswer(draft string, mustAddress []string, strict bool, originalRequest string) PreflightResult {
	res := PreflightResult{}
	draftLower := strings.ToLower(draft)

	if strings.TrimSpace(draft) == "" {
		res.Issues = append(res.Issues, PreflightIssue{Kind: IssueMissingAnswer, Detail: "empty draft"})
		res.Score = scoreFor(res.Issues)
		return res
	}

	if len(mustAddress) > maxPreflightItems {
		mustAddress = mustAddress[:maxPreflightItems]
	}

	draftTokens := tokenSet(draftLower)
	for _, item := range mustAddress {
		res.CheckedItems = append(res.CheckedItems, item)
		itemTokens := tokens(strings.ToLower(item))
		if len(itemTokens) == 0 {
			continue
		}
		matches := 0
		for _, tok := range itemTokens {
			if draftTokens[tok] {
				matches++
			}
		}
		need := 1
		if len(itemTokens) > 3 {
			need = int(math.Ceil(0.4 * float64(len(itemTokens))))
			if need < 2 {
				need = 2
			}
		}
		if matches < need {
			res.Issues = append(res.Issues, PreflightIssue{Kind: IssueMissingAnswer, Detail: item})
		}
	}

	if containsAny(draftLower, positiveCompletion) && containsAny(draftLower, negativeCompletion) {
		res.Issues = append(res.Issues, PreflightIssue{
			Kind: IssueContradiction, Detail: "draft both claims and denies completion",
		})
	}

	if containsAny(draftLower, externalActionClaims) && !containsAny(draftLower, evidenceMarkers) {
		res.Issues = append(res.Issues, PreflightIssue{
			Kind: IssueUnverifiedClaim, Detail: "external action claimed without id/status/result",
		})
	}

	if originalRequest != "" {
		if dl, rl := detectLanguage(draft), detectLanguage(originalRequest); dl != "" && rl != "" && dl != rl {
			res.Issues = append(res.Issues, PreflightIssue{
				Kind: IssueLanguageMismatch, Detail: "draft " + dl + ", request " + rl,
			})
		}
	}

	res.Score = scoreFor(res.Issues)
	if strict {
		res.OK = len(res.Issues) == 0
	} else {
		res.OK = res.Score >= 0.75 && countIssues(res.Issues, IssueContradiction) == 0
	}
	return res
}

func scoreFor(issues []PreflightIssue) float64 {
	score := 1.0 -
		0.18*float64(countIssues(issues, IssueMissingAnswer)) -
		0.35*float64(countIssues(issues, IssueContradiction)) -
		0.2*float64(countIssues(issues, IssueUnverifiedClaim)) -
		0.1*float64(countIssues(issues, IssueLanguageMismatch))
	return math.Max(0, math.Min(1, score))
}

func countIssues(issues []PreflightIssue, kind PreflightIssueKind) int {
	n := 0
	for _, issue := range issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func tokens(s string) []string {
	var out []string
	for _, tok := range tokenSplitRe.Split(s, -1) {
		if len(tok) >= 4 && !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokens(s) {
		set[tok] = true
	}
	return set
}

// German and English character bigram frequencies differ enough for a cheap
// either-or call on short chat messages.
var germanBigrams = []string{"ch", "ei", "ie", "sch", "en ", "ung", "der", "die", "das", "ück", "ä", "ö", "ü", "ß"}
var englishBigrams = []string{"th", "he ", "ing", "the", "tio", "and", " of", " to", "ed ", "you"}

func detectLanguage(s string) string {
	lower := strings.ToLower(s)
	de, en := 0, 0
	for _, bg := range germanBigrams {
		de += strings.Count(lower, bg)
	}
	for _, bg := range englishBigrams {
		en += strings.Count(lower, bg)
	}
	switch {
	case de > en*2:
		return "de"
	case en > de*2:
		return "en"
	default:
		return ""
	}
}
