// handlers/views.go
package handlers

import (
	"circle-progression-system/catalog"
	"circle-progression-system/services"
)

type itemView struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Hint          string               `json:"hint,omitempty"`
	Category      catalog.Category     `json:"category"`
	Status        string               `json:"status"`
	Progress      int                  `json:"progress"`
	Secret        bool                 `json:"secret"`
	Requirements  []string             `json:"requirements,omitempty"`
	Prerequisites []string             `json:"prerequisites,omitempty"`
	Rewards       services.RewardsView `json:"rewards"`
}

func statusOf(ev services.Evaluation, id string) string {
	switch {
	case ev.IsUnlocked(id):
		return "unlocked"
	case ev.IsEligible(id):
		return "eligible"
	default:
		return "locked"
	}
}

// newItemView renders one unlockable. Secret items keep only their hint until unlocked.
func newItemView(u catalog.Unlockable, ev services.Evaluation) itemView {
	v := itemView{
		ID:       u.ID,
		Name:     u.Name,
		Hint:     u.Hint,
		Category: u.Category,
		Status:   statusOf(ev, u.ID),
		Progress: ev.Progress[u.ID],
		Secret:   u.Secret,
	}
	if u.Secret && v.Status != "unlocked" {
		v.Name = "???"
		return v
	}
	v.Description = u.Description
	v.Prerequisites = u.Prerequisites
	v.Rewards = services.NewRewardsView(u.Rewards)
	for _, r := range u.Requirements {
		v.Requirements = append(v.Requirements, r.Describe())
	}
	return v
}

func itemViews(cat *catalog.Catalog, category catalog.Category, ev services.Evaluation) []itemView {
	items := cat.ByCategory(category)
	out := make([]itemView, 0, len(items))
	for _, u := range items {
		out = append(out, newItemView(u, ev))
	}
	return out
}
