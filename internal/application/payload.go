package application

import (
	"encoding/json"
	"time"

	"github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
)

// PayloadLabel is a label as GitHub last reported it.
type PayloadLabel struct {
	Name        string
	Color       string
	Description string
}

// ItemPayload holds the presentation fields read from an item's raw GitHub
// payload. Fields missing from the payload stay zero.
type ItemPayload struct {
	HTMLURL         string
	Labels          []PayloadLabel
	MilestoneTitle  string
	MilestoneDueOn  time.Time
	Locked          bool
	StateReason     string
	Draft           bool
	HeadRef         string
	BaseRef         string
	Additions       int
	Deletions       int
	ChangedFiles    int
	ReactionTotal   int
	ReactionsByKind map[string]int
}

// DecodeItemPayload decodes the raw REST payload stored for an issue or pull
// request. It returns nil for discussions, empty payloads and payloads that
// do not decode.
func DecodeItemPayload(itemType model.ItemType, raw json.RawMessage) *ItemPayload {
	if len(raw) == 0 {
		return nil
	}

	switch itemType {
	case model.ItemTypeIssue:
		var issue github.Issue
		if err := json.Unmarshal(raw, &issue); err != nil {
			return nil
		}
		p := &ItemPayload{
			HTMLURL:     issue.GetHTMLURL(),
			Labels:      payloadLabels(issue.Labels),
			Locked:      issue.GetLocked(),
			StateReason: issue.GetStateReason(),
		}
		setMilestone(p, issue.Milestone)
		setReactions(p, issue.Reactions)
		return p

	case model.ItemTypePullRequest:
		var pr github.PullRequest
		if err := json.Unmarshal(raw, &pr); err != nil {
			return nil
		}
		p := &ItemPayload{
			HTMLURL:      pr.GetHTMLURL(),
			Labels:       payloadLabels(pr.Labels),
			Locked:       pr.GetLocked(),
			Draft:        pr.GetDraft(),
			HeadRef:      pr.GetHead().GetRef(),
			BaseRef:      pr.GetBase().GetRef(),
			Additions:    pr.GetAdditions(),
			Deletions:    pr.GetDeletions(),
			ChangedFiles: pr.GetChangedFiles(),
		}
		setMilestone(p, pr.Milestone)
		return p
	}
	return nil
}

func payloadLabels(labels []*github.Label) []PayloadLabel {
	if len(labels) == 0 {
		return nil
	}
	out := make([]PayloadLabel, 0, len(labels))
	for _, l := range labels {
		out = append(out, PayloadLabel{
			Name:        l.GetName(),
			Color:       l.GetColor(),
			Description: l.GetDescription(),
		})
	}
	return out
}

func setMilestone(p *ItemPayload, m *github.Milestone) {
	if m == nil {
		return
	}
	p.MilestoneTitle = m.GetTitle()
	p.MilestoneDueOn = m.GetDueOn().Time
}

func setReactions(p *ItemPayload, r *github.Reactions) {
	if r == nil {
		return
	}
	p.ReactionTotal = r.GetTotalCount()
	p.ReactionsByKind = map[string]int{
		"+1":       r.GetPlusOne(),
		"-1":       r.GetMinusOne(),
		"laugh":    r.GetLaugh(),
		"confused": r.GetConfused(),
		"heart":    r.GetHeart(),
		"hooray":   r.GetHooray(),
		"rocket":   r.GetRocket(),
		"eyes":     r.GetEyes(),
	}
}
