// Package intake runs the free-stage conversation: it collects the problem and the
// goal, redirects off-topic chatter, then hands out light advice and opens the paywall.
package intake

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/sara-line/go-bot/internal/session"
	"github.com/danielpatrickdp/sara-line/go-bot/internal/slots"
)

// #region types

// Step names the branch of the intake that produced a reply.
type Step string

const (
	StepRedirect Step = "redirect"  // small talk or non-romance text before a problem exists
	StepSafety   Step = "safety"    // explicit sexual text
	StepProblem  Step = "problem"   // problem stored, goal question asked
	StepGoalHelp Step = "goal_help" // goal answer too thin, choices offered
	StepComplete Step = "complete"  // goal stored, light advice sent, stage PAID_GATE
	StepIdle     Step = "idle"      // nothing left to collect
)

// Result is the outcome of one intake turn.
type Result struct {
	Step  Step
	Reply string
}

// Advanced reports whether the turn moved the session to the paywall.
func (r Result) Advanced() bool {
	return r.Step == StepComplete
}

// #endregion types

// #region patterns

var (
	greeting   = regexp.MustCompile(`(?i)^(こんにちは|こんばんは|おはよ|おはよう|やあ|はじめまして|どうも|hi|hello|hey)[！!。.]*$`)
	filler     = regexp.MustCompile(`(?i)^(うーん|んー|うん|はい|ok|了解|りょ|わかった|わかりました|なるほど|yes|yeah|sure)[。!！.]*$`)
	lineNoise  = regexp.MustCompile(`(?i)^(うん|はい|ok|了解|りょ|わかった|わかりました|なるほど|そう|そうそう|よし|とりあえず|一旦|すみません|ごめん)[。!！]*$`)
	romance    = regexp.MustCompile(`(?i)(既読|未読|返信|返事|LINE|ライン|連絡|告白|復縁|好き|気になる|彼氏|彼女|片思い|片想い|デート|会いたい|脈|距離|冷たい|別れ|元カレ|元カノ|付き合|喧嘩|けんか|無視|ブロック|crush|dating|\bex\b|girlfriend|boyfriend|texted|reply|ghost)`)
	sexual     = regexp.MustCompile(`(?i)(オナニー|自慰|性欲|セックス|えっち|エロ|ちんこ|まんこ|勃起|フェラ|射精|\bsex\b|porn)`)
	crlf       = regexp.MustCompile(`\r\n?`)
	trailingWS = regexp.MustCompile(`[ \t]+\n`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// IsSmallTalk reports greetings, fillers and empty text.
func IsSmallTalk(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || greeting.MatchString(t) || filler.MatchString(t)
}

// LooksLikeRomance reports whether text carries any dating-related marker.
func LooksLikeRomance(text string) bool {
	return romance.MatchString(text)
}

// IsSexual reports explicit sexual vocabulary.
func IsSexual(text string) bool {
	return sexual.MatchString(text)
}

// Tidy normalizes line endings, strips trailing blanks and collapses blank runs.
func Tidy(text string) string {
	t := crlf.ReplaceAllString(text, "\n")
	t = trailingWS.ReplaceAllString(t, "\n")
	t = blankRuns.ReplaceAllString(t, "\n\n")
	return strings.TrimSpace(t)
}

// PickMeaningfulLine returns the last line that is not a filler, or the last line.
func PickMeaningfulLine(text string) string {
	lines := lo.FilterMap(strings.Split(Tidy(text), "\n"), func(l string, _ int) (string, bool) {
		l = strings.TrimSpace(l)
		return l, l != ""
	})
	if len(lines) == 0 {
		return ""
	}
	meaningful := lo.Reject(lines, func(l string, _ int) bool { return lineNoise.MatchString(l) })
	if len(meaningful) > 0 {
		return meaningful[len(meaningful)-1]
	}
	return lines[len(lines)-1]
}

// #endregion patterns

// #region handle

// Handle advances the free-stage intake by one user message. It mutates sess:
// the problem and goal land in intake slots, text-matched slots are merged, and the
// stage moves to PAID_GATE once the goal is known.
func Handle(sess *session.Session, text string) Result {
	text = strings.TrimSpace(text)
	if IsSexual(text) {
		return Result{Step: StepSafety, Reply: safetyReply}
	}

	if !sess.Slots.Has(session.SlotProblem) {
		if IsSmallTalk(text) || !LooksLikeRomance(text) {
			return Result{Step: StepRedirect, Reply: redirectReply}
		}
		line := PickMeaningfulLine(text)
		slots.Merge(sess.Slots, slots.Extract(text, sess.Slots), session.SourceText)
		sess.Slots.Set(session.SlotProblem, line, session.SourceIntake)
		sess.Slots.Set(session.SlotCategory, lo.CoalesceOrEmpty(slots.InferCategory(text), "OTHER"), session.SourceIntake)
		return Result{Step: StepProblem, Reply: goalQuestion}
	}

	if !sess.Slots.Has(session.SlotGoal) || sess.Slots[session.SlotGoal].Source != session.SourceIntake {
		if IsSmallTalk(text) || utf8.RuneCountInString(text) <= 1 {
			return Result{Step: StepGoalHelp, Reply: goalChoices}
		}
		// canonical goal when the answer matches one, the answer itself otherwise
		line := PickMeaningfulLine(text)
		goal := lo.CoalesceOrEmpty(slots.Extract(text, nil)[session.SlotGoal], line)
		updates := slots.Extract(text, sess.Slots)
		delete(updates, session.SlotGoal)
		slots.Merge(sess.Slots, updates, session.SourceText)
		sess.Slots[session.SlotGoal] = session.SlotValue{Value: goal, Source: session.SourceIntake}
		sess.Stage = session.StagePaidGate
		return Result{Step: StepComplete, Reply: Closing(sess.Slots, line)}
	}

	return Result{Step: StepIdle, Reply: PaywallHint}
}

// #endregion handle
