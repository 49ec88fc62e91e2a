// Package splitter turns a sitting's cleaned verbatim text into an ordered
// list of individual speeches.
package splitter

import (
	"regexp"
	"strings"

	"github.com/eurowatch/eurowatch/internal/database"
	"github.com/eurowatch/eurowatch/internal/groups"
)

// separator is the sequence that divides a speaker header from the speech
// body. It occurs only in that position, never inside a body.
const separator = ". – "

// minBodyLen drops fragments too short to be a speech.
const minBodyLen = 40

// maxTitleLen bounds what a title-only header may look like.
const maxTitleLen = 60

// MatchKind tags the header pattern a line matched.
type MatchKind int

const (
	Continuation MatchKind = iota
	NameWithRole
	NameWithGroup
	NameWithGroupAndRole
	TitleOnly
)

// HeaderMatch is the result of matching one line against the header
// cascade. Fields are populated according to Kind.
type HeaderMatch struct {
	Kind        MatchKind
	Speaker     string
	Affiliation string
	Role        string
	Title       string
	Body        string
}

var (
	// Silva Maria, rapporteur. – Body
	reNameRole = regexp.MustCompile(`^([^,()]+?), (.+)$`)
	// Silva Maria (S&D). – Body
	reNameGroup = regexp.MustCompile(`^([^,()]+?) \(([^)]+)\)$`)
	// Silva Maria (S&D), rapporteur. – Body
	reNameGroupRole = regexp.MustCompile(`^([^,()]+?) \(([^)]+)\), (.+)$`)
)

// MatchLine classifies one line of sitting text. A line without the
// separator, or whose header fits no pattern, is a Continuation.
func MatchLine(line string) HeaderMatch {
	idx := strings.Index(line, separator)
	if idx <= 0 {
		return HeaderMatch{Kind: Continuation, Body: line}
	}

	header := strings.TrimSpace(line[:idx])
	body := strings.TrimSpace(line[idx+len(separator):])

	if m := reNameRole.FindStringSubmatch(header); m != nil {
		return HeaderMatch{
			Kind:    NameWithRole,
			Speaker: strings.TrimSpace(m[1]),
			Role:    strings.TrimSpace(m[2]),
			Body:    body,
		}
	}
	if m := reNameGroup.FindStringSubmatch(header); m != nil {
		return HeaderMatch{
			Kind:        NameWithGroup,
			Speaker:     strings.TrimSpace(m[1]),
			Affiliation: strings.TrimSpace(m[2]),
			Body:        body,
		}
	}
	if m := reNameGroupRole.FindStringSubmatch(header); m != nil {
		return HeaderMatch{
			Kind:        NameWithGroupAndRole,
			Speaker:     strings.TrimSpace(m[1]),
			Affiliation: strings.TrimSpace(m[2]),
			Role:        strings.TrimSpace(m[3]),
			Body:        body,
		}
	}
	if !strings.ContainsAny(header, ",()") && len([]rune(header)) <= maxTitleLen {
		return HeaderMatch{Kind: TitleOnly, Title: header, Body: body}
	}

	return HeaderMatch{Kind: Continuation, Body: line}
}

// Split parses cleaned sitting text into speeches with 1-based contiguous
// speech_order. Non-matching lines continue the current speech's body;
// leading lines before the first header are discarded.
func Split(text string) []database.NewSpeech {
	var (
		speeches []database.NewSpeech
		current  *database.NewSpeech
		body     strings.Builder
	)

	flush := func() {
		if current == nil {
			return
		}
		current.SpeechContent = strings.TrimSpace(body.String())
		if len(current.SpeechContent) >= minBodyLen {
			current.SpeechOrder = len(speeches) + 1
			speeches = append(speeches, *current)
		}
		current = nil
		body.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		m := MatchLine(line)
		if m.Kind == Continuation {
			if current != nil {
				if body.Len() > 0 {
					body.WriteByte(' ')
				}
				body.WriteString(m.Body)
			}
			continue
		}

		flush()
		current = &database.NewSpeech{}
		switch m.Kind {
		case NameWithRole:
			speaker := m.Speaker
			role := m.Role
			current.SpeakerName = &speaker
			current.PoliticalGroupRaw = &role
		case NameWithGroup:
			speaker := m.Speaker
			current.SpeakerName = &speaker
			liftAffiliation(current, m.Affiliation)
		case NameWithGroupAndRole:
			speaker := m.Speaker
			role := m.Role
			current.SpeakerName = &speaker
			current.Title = &role
			liftAffiliation(current, m.Affiliation)
		case TitleOnly:
			title := m.Title
			current.Title = &title
		}
		body.WriteString(m.Body)
	}
	flush()

	return speeches
}

// liftAffiliation stores a parenthesized affiliation as the raw group and,
// when it is one of the canonical group tokens, resolves the std/kind/
// reason columns right away. Anything else is left raw for the
// normalization stage.
func liftAffiliation(sp *database.NewSpeech, affiliation string) {
	sp.PoliticalGroupRaw = &affiliation
	if std, ok := groups.LookupCode(affiliation); ok {
		kind := string(groups.KindGroup)
		reason := "parentheses_extraction"
		sp.PoliticalGroupStd = &std
		sp.PoliticalGroupKind = &kind
		sp.PoliticalGroupReason = &reason
	}
}
