// Package stats derives aggregate statistics from enriched portfolio items.
// Everything here is pure: no I/O and no mutation of the input.
package stats

import (
	"fmt"
	"math"
	"strings"

	"HSEWrapped/internal/apperr"
	"HSEWrapped/internal/domain"
)

// collaboratorsShown is how many names the teammate list spells out.
const collaboratorsShown = 3

// SubjectName returns the first author of the first item, which the portfolio
// listing always puts first for the requested student.
func SubjectName(items []domain.EnrichedItem) string {
	if len(items) == 0 || len(items[0].Authors) == 0 || items[0].Authors[0] == "" {
		return domain.UnknownValue
	}
	return items[0].Authors[0]
}

// Compute builds the statistics record. An empty item list yields
// apperr.ErrNoData since every average would be undefined.
func Compute(items []domain.EnrichedItem) (domain.Statistics, error) {
	if len(items) == 0 {
		return domain.Statistics{}, apperr.ErrNoData
	}

	s := domain.Statistics{
		TotalProjects:      len(items),
		MarkDistribution:   make(map[string]int),
		ModuleDistribution: make(map[string]int),
		Best:               items[0],
		MostEngaged:        items[0],
	}

	var (
		markSum, ratingSum float64
		teamSizeSum        int
	)
	for _, item := range items {
		if item.Enrichment.Present {
			s.ProjectsWithLink++
		}
		s.TotalLikes += item.Likes()
		s.TotalViews += item.TotalViews
		markSum += item.Mark
		ratingSum += item.Rating
		s.MarkDistribution[item.MarkLabel()]++
		s.ModuleDistribution[item.ModuleName]++

		size := item.TeamSize()
		s.TotalTeamMembers += size - 1
		if size > 1 {
			s.TeamProjects++
			teamSizeSum += size
		} else {
			s.SoloProjects++
		}

		if item.Mark > s.Best.Mark {
			s.Best = item
		}
		if item.Likes() > s.MostEngaged.Likes() {
			s.MostEngaged = item
		}
	}

	n := float64(len(items))
	s.AverageMark = round(markSum/n, 2)
	s.AverageRating = round(ratingSum/n, 2)
	if s.TeamProjects > 0 {
		s.AverageTeamSize = round(float64(teamSizeSum)/float64(s.TeamProjects), 1)
	}

	s.Collaborators = Collaborators(items, SubjectName(items))
	s.CollaboratorsList = FormatCollaborators(s.Collaborators)

	return s, nil
}

// Collaborators returns co-author names across team projects in first-seen
// order, excluding subject. Names are the only key available, so two people
// sharing a display name collapse into one entry.
func Collaborators(items []domain.EnrichedItem, subject string) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, item := range items {
		if len(item.Authors) < 2 {
			continue
		}
		for _, name := range item.Authors {
			if name == "" || name == subject {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// FormatCollaborators spells out the first three names and counts the rest.
func FormatCollaborators(names []string) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) <= collaboratorsShown {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s и ещё %d", strings.Join(names[:collaboratorsShown], ", "), len(names)-collaboratorsShown)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
