package rules

import (
	"strings"

	"github.com/park285/nickguard/internal/domain"
)

const (
	reasonWhitelist = "whitelist"
	reasonReview    = "suspicious word"
	reasonClean     = "clean"
)

// Classify runs the rules tier: whitelist, hard rules in order, review words,
// then OK. The first hit wins.
func (s *Snapshot) Classify(raw string) domain.Verdict {
	return s.ClassifyNormalized(s.Normalize(raw))
}

// ClassifyNormalized is Classify for an already normalized nickname.
func (s *Snapshot) ClassifyNormalized(norm string) domain.Verdict {
	if _, ok := s.whitelist[norm]; ok {
		return domain.Verdict{Action: domain.ActionOK, Reason: reasonWhitelist, Source: domain.SourceRules, RuleID: "whitelist"}
	}

	for _, r := range s.rules {
		for _, w := range r.words {
			if strings.Contains(norm, w) {
				reason := r.reason
				if reason == "" {
					reason = r.id
				}
				return domain.Verdict{Action: r.action, Reason: reason, Source: domain.SourceRules, RuleID: r.id}
			}
		}
	}

	for _, w := range s.review {
		if strings.Contains(norm, w.norm) {
			return domain.Verdict{
				Action: domain.ActionReview,
				Reason: reasonReview + ": " + w.raw,
				Source: domain.SourceRules,
				RuleID: "review",
			}
		}
	}

	return domain.Verdict{Action: domain.ActionOK, Reason: reasonClean, Source: domain.SourceRules}
}

// Stats summarizes the snapshot for status output.
type Stats struct {
	Version     int `json:"version"`
	Rules       int `json:"rules"`
	RuleWords   int `json:"rule_words"`
	ReviewWords int `json:"review_words"`
	Whitelist   int `json:"whitelist"`
	Warnings    int `json:"warnings"`
}

func (s *Snapshot) Stats() Stats {
	st := Stats{
		Version:     s.Version,
		Rules:       len(s.rules),
		ReviewWords: len(s.review),
		Whitelist:   len(s.whitelist),
		Warnings:    len(s.Warnings),
	}
	for _, r := range s.rules {
		st.RuleWords += len(r.words)
	}
	return st
}
