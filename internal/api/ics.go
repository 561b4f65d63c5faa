package api

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"

	"carevisit/internal/model"
	"carevisit/internal/slots"
)

// visitLength is the block a timed visit takes in calendar clients.
const visitLength = 3 * time.Hour

// buildICS renders a facility's slots. Dates produced by a rule with a start
// time become timed events; all others are all-day. Holds are TENTATIVE and
// bookings CONFIRMED.
func buildICS(facility model.Facility, facilitySlots []slots.Slot, rules []model.RecurringRule, stamp time.Time, loc *time.Location) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//carevisit//visit calendar//EN")
	cal.SetXWRCalName(facility.Name)

	for _, slot := range facilitySlots {
		event := cal.AddEvent(fmt.Sprintf("%s_%s@carevisit", slot.Facility, slot.Date))
		event.SetDtStampTime(stamp)

		if start, ok := ruleStart(rules, slot, loc); ok {
			event.SetStartAt(start)
			event.SetEndAt(start.Add(visitLength))
		} else {
			day := slot.Date.In(loc)
			event.SetAllDayStartAt(day)
			event.SetAllDayEndAt(day.AddDate(0, 0, 1))
		}

		if slot.Confirmed {
			event.SetStatus(ics.ObjectStatusConfirmed)
			event.SetSummary(fmt.Sprintf("Visit: %s (%d residents)", facility.Name, len(slot.Members)))
		} else {
			event.SetStatus(ics.ObjectStatusTentative)
			event.SetSummary(fmt.Sprintf("Hold: %s", facility.Name))
			event.SetDescription(fmt.Sprintf("%s hold", slot.Origin))
		}
	}
	return cal.Serialize()
}

func ruleStart(rules []model.RecurringRule, slot slots.Slot, loc *time.Location) (time.Time, bool) {
	rule, ok := slots.RuleOn(rules, slot.Facility, slot.Date)
	if !ok || rule.Time == "" {
		return time.Time{}, false
	}
	start, err := slots.StartOn(rule, slot.Date, loc)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}
