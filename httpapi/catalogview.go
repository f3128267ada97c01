package httpapi

import (
	"pkt.systems/attackdeck/catalog"
	"pkt.systems/attackdeck/schema"
)

type catalogView struct {
	Categories []schema.Category `json:"categories"`
	Tools      []toolView        `json:"tools"`
}

type toolView struct {
	ID          schema.ToolID     `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    schema.Category   `json:"category,omitempty"`
	Parameters  []paramView       `json:"parameters"`
	Attacks     []attackView      `json:"attacks"`
	Streams     []schema.StreamID `json:"streams,omitempty"`
	SurfacePort int               `json:"surfacePort,omitempty"`
}

type attackView struct {
	ID          schema.AttackID `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []paramView     `json:"parameters"`
}

type paramView struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
}

func newCatalogView(cat *catalog.Catalog) catalogView {
	view := catalogView{Categories: cat.Categories(), Tools: []toolView{}}
	if view.Categories == nil {
		view.Categories = []schema.Category{}
	}
	for _, tool := range cat.Tools() {
		tv := toolView{
			ID:          tool.ID,
			Name:        tool.Name,
			Description: tool.Description,
			Category:    tool.Category,
			Parameters:  newParamViews(tool.Params),
			Attacks:     make([]attackView, 0, len(tool.Attacks)),
			Streams:     tool.StreamIDs(),
		}
		if tool.Surface != nil {
			tv.SurfacePort = tool.Surface.Port
		}
		for i := range tool.Attacks {
			attack := tool.Attacks[i]
			tv.Attacks = append(tv.Attacks, attackView{
				ID:          attack.ID,
				Name:        attack.Name,
				Description: attack.Description,
				Parameters:  newParamViews(tool.ParamsFor(&attack)),
			})
		}
		view.Tools = append(view.Tools, tv)
	}
	return view
}

func newParamViews(specs []catalog.ParamSpec) []paramView {
	out := make([]paramView, 0, len(specs))
	for _, spec := range specs {
		out = append(out, paramView{Name: spec.Name, Label: spec.Label, Default: spec.Default, Required: spec.Required})
	}
	return out
}
