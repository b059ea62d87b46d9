package calendar

import (
	"fmt"
	"time"

	ics "github.com/emersion/go-ical"
)

// localDateTimeLayout is an iCalendar DATE-TIME without a zone suffix.
const localDateTimeLayout = "20060102T150405"

// tzidLocation reports whether t's location can be written as a TZID.
// Only named IANA zones qualify; Local and fixed offsets cannot be
// resolved by other clients.
func tzidLocation(loc *time.Location) bool {
	if loc == nil || loc == time.UTC || loc == time.Local {
		return false
	}
	name := loc.String()
	if name == "" || name == "UTC" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// addEvent appends ev to cal together with the VTIMEZONE its times refer to.
// Events in a zone that cannot be named are written in UTC.
func addEvent(cal *ics.Calendar, ev Event) {
	loc := ev.Start.Location()
	if !tzidLocation(loc) {
		ev.Start = ev.Start.UTC()
		ev.End = ev.End.UTC()
	} else {
		ev.End = ev.End.In(loc)
		mergeTimezone(cal, newVTimezone(loc, ev.Start.AddDate(-1, 0, 0), ev.End.AddDate(1, 0, 0)))
	}
	cal.Children = append(cal.Children, newVEvent(ev))
}

// newVTimezone describes loc between from and to: the observance in effect
// at from, then one observance per offset change.
func newVTimezone(loc *time.Location, from, to time.Time) *ics.Component {
	tz := ics.NewComponent(ics.CompTimezone)
	tz.Props.SetText(ics.PropTimezoneID, loc.String())

	start := from.In(loc)
	name, offset := start.Zone()
	tz.Children = append(tz.Children, newObservance(start.IsDST(), "19700101T000000", name, offset, offset))

	for _, at := range transitions(loc, from, to) {
		before := at.Add(-time.Second).In(loc)
		_, prev := before.Zone()
		after := at.In(loc)
		name, offset := after.Zone()

		// DTSTART is the wall-clock time of the change in the old offset.
		dtstart := at.In(time.FixedZone("", prev)).Format(localDateTimeLayout)
		tz.Children = append(tz.Children, newObservance(after.IsDST(), dtstart, name, prev, offset))
	}
	return tz
}

func newObservance(dst bool, dtstart, name string, from, to int) *ics.Component {
	kind := ics.CompTimezoneStandard
	if dst {
		kind = ics.CompTimezoneDaylight
	}
	obs := ics.NewComponent(kind)

	// Raw values keep the default DATE-TIME and UTC-OFFSET types.
	setRaw(obs, ics.PropDateTimeStart, dtstart)
	setRaw(obs, ics.PropTimezoneOffsetFrom, formatOffset(from))
	setRaw(obs, ics.PropTimezoneOffsetTo, formatOffset(to))
	if name != "" {
		obs.Props.SetText(ics.PropTimezoneName, name)
	}
	return obs
}

func setRaw(comp *ics.Component, name, value string) {
	prop := ics.NewProp(name)
	prop.Value = value
	comp.Props.Set(prop)
}

// transitions returns every instant in [from, to) at which loc's UTC offset
// changes, to the second.
func transitions(loc *time.Location, from, to time.Time) []time.Time {
	const step = 24 * time.Hour

	var out []time.Time
	lo := from
	_, loOffset := lo.In(loc).Zone()
	for lo.Before(to) {
		hi := lo.Add(step)
		_, hiOffset := hi.In(loc).Zone()
		if hiOffset != loOffset {
			out = append(out, findTransition(loc, lo, hi))
		}
		lo, loOffset = hi, hiOffset
	}
	return out
}

// findTransition narrows the single offset change in (lo, hi] to the first
// second with the new offset.
func findTransition(loc *time.Location, lo, hi time.Time) time.Time {
	_, loOffset := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if !mid.After(lo) {
			mid = lo.Add(time.Second)
		}
		if _, off := mid.In(loc).Zone(); off == loOffset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}

// formatOffset renders seconds east of UTC as an iCalendar UTC-OFFSET.
func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if s != 0 {
		return fmt.Sprintf("%c%02d%02d%02d", sign, h, m, s)
	}
	return fmt.Sprintf("%c%02d%02d", sign, h, m)
}

// mergeTimezone adds tz to cal, or adds its missing observances to the
// VTIMEZONE cal already has for the same TZID.
func mergeTimezone(cal *ics.Calendar, tz *ics.Component) {
	tzid := tz.Props.Get(ics.PropTimezoneID).Value

	for _, child := range cal.Children {
		if child.Name != ics.CompTimezone {
			continue
		}
		if id := child.Props.Get(ics.PropTimezoneID); id == nil || id.Value != tzid {
			continue
		}

		seen := make(map[string]bool)
		for _, obs := range child.Children {
			seen[observanceKey(obs)] = true
		}
		for _, obs := range tz.Children {
			if !seen[observanceKey(obs)] {
				child.Children = append(child.Children, obs)
			}
		}
		return
	}

	// VTIMEZONE goes ahead of the events that use it.
	for i, child := range cal.Children {
		if child.Name == ics.CompEvent {
			cal.Children = append(cal.Children[:i], append([]*ics.Component{tz}, cal.Children[i:]...)...)
			return
		}
	}
	cal.Children = append(cal.Children, tz)
}

func observanceKey(obs *ics.Component) string {
	key := obs.Name
	if p := obs.Props.Get(ics.PropDateTimeStart); p != nil {
		key += "/" + p.Value
	}
	return key
}
