package domain

// Statistics aggregates a subject's enriched projects. It is computed once per
// request and never mutated afterwards.
type Statistics struct {
	TotalProjects      int            `json:"totalProjects"`
	ProjectsWithLink   int            `json:"projectsWithHseDesign"`
	TotalLikes         int            `json:"totalLikes"`
	TotalViews         int            `json:"totalViews"`
	AverageMark        float64        `json:"averageMark"`
	AverageRating      float64        `json:"averageRating"`
	MarkDistribution   map[string]int `json:"markDistribution"`
	ModuleDistribution map[string]int `json:"moduleDistribution"`
	TeamProjects       int            `json:"teamProjects"`
	SoloProjects       int            `json:"soloProjects"`
	TotalTeamMembers   int            `json:"totalTeamMembers"`
	AverageTeamSize    float64        `json:"averageTeamSize"`
	Collaborators      []string       `json:"teammates"`
	CollaboratorsList  string         `json:"teammatesList"`
	Best               EnrichedItem   `json:"bestProject"`
	MostEngaged        EnrichedItem   `json:"mostLikedProject"`
}

// UniqueCollaborators is the size of the de-duplicated collaborator set.
func (s Statistics) UniqueCollaborators() int {
	return len(s.Collaborators)
}

// Summary is the compact snapshot written to the usage log on success.
type Summary struct {
	StudentName   string  `json:"studentName"`
	TotalProjects int     `json:"totalProjects"`
	TotalLikes    int     `json:"totalLikes"`
	TotalViews    int     `json:"totalViews"`
	AverageMark   float64 `json:"averageMark"`
}

// Summarize extracts the usage-log snapshot from a report.
func (r Report) Summarize() Summary {
	return Summary{
		StudentName:   r.StudentName,
		TotalProjects: r.Statistics.TotalProjects,
		TotalLikes:    r.Statistics.TotalLikes,
		TotalViews:    r.Statistics.TotalViews,
		AverageMark:   r.Statistics.AverageMark,
	}
}
