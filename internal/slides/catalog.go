package slides

import (
	"fmt"

	"HSEWrapped/internal/domain"
)

// Definition describes one slide kind: when it applies and how its record is
// bound from the report.
type Definition struct {
	Kind    Kind
	Include func(domain.Report) bool
	Build   func(domain.Report) Slide
}

// Catalog keeps slide definitions in presentation order.
type Catalog struct {
	defs  []Definition
	index map[Kind]int
}

// NewCatalog builds an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: map[Kind]int{}}
}

// Register appends a definition or replaces the one with the same kind in place.
func (c *Catalog) Register(def Definition) {
	if c.index == nil {
		c.index = map[Kind]int{}
	}
	if i, ok := c.index[def.Kind]; ok {
		c.defs[i] = def
		return
	}
	c.index[def.Kind] = len(c.defs)
	c.defs = append(c.defs, def)
}

// Resolve returns the definition of kind or an error if it is absent.
func (c *Catalog) Resolve(kind Kind) (Definition, error) {
	if i, ok := c.index[kind]; ok {
		return c.defs[i], nil
	}
	return Definition{}, fmt.Errorf("slide %s is not registered", kind)
}

// Plan binds every applicable slide for report, in registration order.
func (c *Catalog) Plan(report domain.Report) []Slide {
	planned := make([]Slide, 0, len(c.defs))
	for _, def := range c.defs {
		if def.Include != nil && !def.Include(report) {
			continue
		}
		planned = append(planned, def.Build(report))
	}
	return planned
}

// Default returns the standard six-slide sequence.
func Default() *Catalog {
	c := NewCatalog()
	c.Register(Definition{Kind: KindMain, Build: buildMain})
	c.Register(Definition{
		Kind:    KindTeam,
		Include: func(r domain.Report) bool { return r.Statistics.TeamProjects > 0 },
		Build:   buildTeam,
	})
	c.Register(Definition{Kind: KindProjects, Build: buildProjects})
	c.Register(Definition{
		Kind:    KindLikes,
		Include: func(r domain.Report) bool { return r.Statistics.TotalLikes > 0 },
		Build:   func(r domain.Report) Slide { return LikesSlide{TotalLikes: r.Statistics.TotalLikes} },
	})
	c.Register(Definition{
		Kind:    KindViews,
		Include: func(r domain.Report) bool { return r.Statistics.TotalViews > 0 },
		Build:   func(r domain.Report) Slide { return ViewsSlide{TotalViews: r.Statistics.TotalViews} },
	})
	c.Register(Definition{
		Kind: KindCollabs,
		Include: func(r domain.Report) bool {
			return r.Statistics.TeamProjects > 0 && r.Statistics.UniqueCollaborators() > 0
		},
		Build: buildCollabs,
	})
	return c
}
