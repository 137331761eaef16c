package service

import "localservices/internal/models"

// ProjectGroups folds bookings into one customer-facing row per group.
// Records without a group id are their own group. Rows keep the order in which
// each group first appears in the input. Nothing is persisted.
func ProjectGroups(bookings []*models.Booking) []models.GroupView {
	var order []string
	groups := make(map[string][]*models.Booking)
	for _, b := range bookings {
		if b == nil {
			continue
		}
		key := b.GroupKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], b)
	}

	views := make([]models.GroupView, 0, len(order))
	for _, key := range order {
		views = append(views, projectGroup(key, groups[key]))
	}
	return views
}

func projectGroup(key string, siblings []*models.Booking) models.GroupView {
	first := siblings[0]
	view := models.GroupView{
		Key:       key,
		GroupID:   first.GroupID,
		Status:    first.Status,
		Booking:   first,
		GroupSize: len(siblings),
	}

	var pending *models.Booking
	allDeclinedOrCancelled := true
	for _, b := range siblings {
		switch b.Status {
		case models.StatusConfirmed, models.StatusCompleted:
			// the accepted copy resolves the group, before and after the job is done
			view.Status = b.Status
			view.Booking = b
			return view
		case models.StatusPending:
			if pending == nil {
				pending = b
			}
		}
		if b.Status != models.StatusDeclined && b.Status != models.StatusCancelled {
			allDeclinedOrCancelled = false
		}
	}

	switch {
	case pending != nil:
		view.Status = models.StatusPending
		view.Booking = pending
	case allDeclinedOrCancelled:
		view.Status = models.StatusDeclined
	}
	return view
}
