package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/interval"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/tz"
)

// Participant is one participant's computed slots, in participant-list order.
type Participant struct {
	UserID string
	Slots  []interval.Interval
}

// Aggregate combines per-participant slots under the given scheduling mode. The result is sorted
// by start. Eligible lists follow the order of participants, not the order results arrived in.
func Aggregate(mode model.SchedulingMode, participants []Participant) []model.Slot {
	var out []model.Slot
	switch mode {
	case model.ModeSpecificPerson:
		for _, p := range participants {
			for _, s := range p.Slots {
				out = append(out, model.Slot{Start: s.Start, End: s.End, Eligible: []string{p.UserID}})
			}
		}
	case model.ModeAllAvailable:
		counts := map[int64]int{}
		first := map[int64]interval.Interval{}
		for _, p := range participants {
			for _, s := range p.Slots {
				k := s.Start.UnixNano()
				counts[k]++
				if _, ok := first[k]; !ok {
					first[k] = s
				}
			}
		}
		ids := make([]string, 0, len(participants))
		for _, p := range participants {
			ids = append(ids, p.UserID)
		}
		for k, n := range counts {
			if n != len(participants) {
				continue
			}
			s := first[k]
			out = append(out, model.Slot{Start: s.Start, End: s.End, Eligible: append([]string(nil), ids...)})
		}
	default:
		index := map[int64]int{}
		for _, p := range participants {
			for _, s := range p.Slots {
				k := s.Start.UnixNano()
				if i, ok := index[k]; ok {
					out[i].Eligible = append(out[i].Eligible, p.UserID)
					continue
				}
				index[k] = len(out)
				out = append(out, model.Slot{Start: s.Start, End: s.End, Eligible: []string{p.UserID}})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// OnGuestDate keeps slots whose start falls on date d in the guest's zone.
func OnGuestDate(slots []model.Slot, d tz.Date, guest *time.Location) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if tz.CalendarDate(s.Start, guest) == d {
			out = append(out, s)
		}
	}
	return out
}
