package tree

import "arborescence/internal/model"

type SectionView struct {
	Node   model.Node  `json:"node"`
	Titles []TitleView `json:"titles"`
}

type TitleView struct {
	Node      model.Node   `json:"node"`
	SubTitles []model.Node `json:"subTitles"`
}

// BuildOutline derives the nested Section -> Title -> Sub-Title view from r.
// The result is a fresh copy; editing it does not touch the model.
func BuildOutline(r Reader) []SectionView {
	sections := r.Children("", model.LevelSection)
	out := make([]SectionView, 0, len(sections))
	for _, s := range sections {
		sv := SectionView{Node: s, Titles: []TitleView{}}
		for _, t := range r.Children(s.ID, model.LevelTitle) {
			subs := r.Children(t.ID, model.LevelSubTitle)
			if subs == nil {
				subs = []model.Node{}
			}
			sv.Titles = append(sv.Titles, TitleView{Node: t, SubTitles: subs})
		}
		out = append(out, sv)
	}
	return out
}
