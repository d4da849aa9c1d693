package evaluator

import (
	"fmt"
	"strings"
)

const systemPrompt = `You curate a library of Brazilian jiu-jitsu instructional videos.
Judge whether the video below is genuine instructional material worth keeping.
Reject highlight reels, podcasts, match footage, vlogs, and reaction content.

Respond with JSON only, using exactly this shape:
{
  "accepted": true or false,
  "score": 0-10 quality score,
  "credibility": 0-100 instructor credibility,
  "subject": "canonical instructor name",
  "topic": "primary technique or position taught",
  "category": "one of: submissions, escapes, guard, passing, takedowns, concepts",
  "reason": "one sentence",
  "instructors": ["other instructor names mentioned, if any"]
}`

func buildUserPrompt(candidate Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", candidate.Title)
	if candidate.ChannelTitle != "" {
		fmt.Fprintf(&b, "Channel: %s\n", candidate.ChannelTitle)
	}
	if candidate.SubjectHint != "" {
		fmt.Fprintf(&b, "Expected instructor: %s\n", candidate.SubjectHint)
	}
	if candidate.TopicHint != "" {
		fmt.Fprintf(&b, "Expected topic: %s\n", candidate.TopicHint)
	}
	if candidate.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", truncate(candidate.Description, 1500))
	}
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
