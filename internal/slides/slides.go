// Package slides defines one typed record per rendered slide kind.
package slides

import (
	"fmt"
	"strings"

	"HSEWrapped/internal/domain"
)

// Kind names a slide; it doubles as the template name and the file name part.
type Kind string

const (
	KindMain     Kind = "main"
	KindTeam     Kind = "team"
	KindProjects Kind = "projects"
	KindLikes    Kind = "likes"
	KindViews    Kind = "views"
	KindCollabs  Kind = "collabs"
)

// Slide is a bound record ready for rendering.
type Slide interface {
	Kind() Kind
}

type MainSlide struct {
	StudentName      string
	TotalProjects    int
	AverageMark      string
	TotalLikes       int
	ProjectsWithLink int
}

func (MainSlide) Kind() Kind { return KindMain }

type TeamSlide struct {
	StudentName     string
	TeamProjects    int
	TeammatesList   string
	UniqueTeammates int
}

func (TeamSlide) Kind() Kind { return KindTeam }

type ProjectsSlide struct {
	StudentName    string
	BestTitle      string
	BestMark       string
	MostLikedTitle string
	MostLikedLikes int
}

func (ProjectsSlide) Kind() Kind { return KindProjects }

type LikesSlide struct {
	TotalLikes int
}

func (LikesSlide) Kind() Kind { return KindLikes }

type ViewsSlide struct {
	TotalViews int
}

func (ViewsSlide) Kind() Kind { return KindViews }

type CollabsSlide struct {
	TotalCollabs  int
	TeammatesList string
}

func (CollabsSlide) Kind() Kind { return KindCollabs }

func buildMain(r domain.Report) Slide {
	return MainSlide{
		StudentName:      r.StudentName,
		TotalProjects:    r.Statistics.TotalProjects,
		AverageMark:      fmt.Sprintf("%.1f", r.Statistics.AverageMark),
		TotalLikes:       r.Statistics.TotalLikes,
		ProjectsWithLink: r.Statistics.ProjectsWithLink,
	}
}

func buildTeam(r domain.Report) Slide {
	return TeamSlide{
		StudentName:     r.StudentName,
		TeamProjects:    r.Statistics.TeamProjects,
		TeammatesList:   r.Statistics.CollaboratorsList,
		UniqueTeammates: r.Statistics.UniqueCollaborators(),
	}
}

func buildProjects(r domain.Report) Slide {
	s := r.Statistics
	return ProjectsSlide{
		StudentName:    r.StudentName,
		BestTitle:      s.Best.Title,
		BestMark:       s.Best.MarkLabel(),
		MostLikedTitle: s.MostEngaged.Title,
		MostLikedLikes: s.MostEngaged.Likes(),
	}
}

func buildCollabs(r domain.Report) Slide {
	return CollabsSlide{
		TotalCollabs:  r.Statistics.UniqueCollaborators(),
		TeammatesList: withPreposition(r.Statistics.Collaborators),
	}
}

func withPreposition(names []string) string {
	if len(names) == 0 {
		return "с коллегами из ВШЭ"
	}
	shown := names
	if len(shown) > 3 {
		shown = shown[:3]
	}
	out := "с " + strings.Join(shown, ", ")
	if rest := len(names) - len(shown); rest > 0 {
		out += fmt.Sprintf(" и ещё %d", rest)
	}
	return out
}
