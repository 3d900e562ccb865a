package view

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitpay/internal/restaurant"
)

type restaurantsMsg struct {
	restaurants []*restaurant.Restaurant
	err         error
}

func loadRestaurantsCmd(svc *restaurant.Service) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		rests, err := svc.List(ctx)

		return restaurantsMsg{restaurants: rests, err: err}
	}
}

func restaurantForm(rests []*restaurant.Restaurant) *huh.Form {
	options := make([]huh.Option[string], 0, len(rests))
	for _, r := range rests {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", r.Name, r.Currency), r.ID.String()))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("restaurant").
				Title("Restaurant").
				Options(options...),
		),
	).WithWidth(50).WithShowHelp(false)
}

// selectedRestaurant returns the restaurant picked in a completed restaurantForm.
func selectedRestaurant(form *huh.Form, rests []*restaurant.Restaurant) *restaurant.Restaurant {
	id, err := uuid.Parse(form.GetString("restaurant"))
	if err != nil {
		return nil
	}

	for _, r := range rests {
		if r.ID == id {
			return r
		}
	}

	return nil
}
