package mapping

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"vda5050-bridge/internal/common/idgen"
	"vda5050-bridge/internal/fleet"
	"vda5050-bridge/internal/models"
)

// Trigger is a position within an order at which an action may be placed.
type Trigger string

const (
	TriggerPassing    Trigger = "PASSING"
	TriggerOrderStart Trigger = "ORDER_START"
	TriggerOrderEnd   Trigger = "ORDER_END"
)

// ParseTrigger accepts trigger names case-insensitively.
func ParseTrigger(s string) (Trigger, error) {
	switch Trigger(strings.ToUpper(strings.TrimSpace(s))) {
	case TriggerPassing:
		return TriggerPassing, nil
	case TriggerOrderStart:
		return TriggerOrderStart, nil
	case TriggerOrderEnd:
		return TriggerOrderEnd, nil
	}
	return "", fmt.Errorf("unknown trigger %q", s)
}

// TriggersFor returns the triggers valid at a node.
func TriggersFor(first, last bool) []Trigger {
	switch {
	case first && last:
		return []Trigger{TriggerOrderStart, TriggerOrderEnd}
	case first:
		return []Trigger{TriggerOrderStart}
	case last:
		return []Trigger{TriggerOrderEnd}
	}
	return []Trigger{TriggerPassing}
}

// PropertyAction is an action declared in properties, before placement.
type PropertyAction struct {
	Type         string
	ID           string
	BlockingType models.BlockingType
	Parameters   map[string]interface{}
	Triggers     []Trigger
	Tags         []string
}

func (pa PropertyAction) triggeredBy(valid []Trigger) bool {
	for _, t := range pa.Triggers {
		for _, v := range valid {
			if t == v {
				return true
			}
		}
	}
	return false
}

// ExtractActions parses the actions declared with
//
//	vda5050:action.<id>=<type>
//	vda5050:action.<id>.blockingType=NONE|SOFT|HARD
//	vda5050:action.<id>.parameter.<key>=<value>
//	vda5050:action.<id>.when=PASSING,ORDER_START,ORDER_END
//	vda5050:action.<id>.tags=<tag>,<tag>
//
// Sub-keys of an id without a type entry are ignored. The result is sorted by
// the natural order of the ids.
func ExtractActions(props fleet.Properties) ([]PropertyAction, error) {
	byID := make(map[string]*PropertyAction)
	get := func(id string) *PropertyAction {
		pa, ok := byID[id]
		if !ok {
			pa = &PropertyAction{ID: id, BlockingType: models.BlockingTypeNone, Parameters: map[string]interface{}{}}
			byID[id] = pa
		}
		return pa
	}

	for key, raw := range props.WithPrefix(fleet.PropActionPrefix) {
		value := strings.TrimSpace(raw)
		rest := strings.TrimPrefix(key, fleet.PropActionPrefix)
		id, sub, _ := strings.Cut(rest, ".")
		if id == "" {
			continue
		}
		pa := get(id)
		switch {
		case sub == "":
			pa.Type = value
		case sub == "blockingType":
			bt, err := models.ParseBlockingType(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			pa.BlockingType = bt
		case sub == "when":
			for _, name := range fleet.SplitList(value) {
				t, err := ParseTrigger(name)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				pa.Triggers = append(pa.Triggers, t)
			}
		case sub == "tags":
			pa.Tags = fleet.SplitList(value)
		case strings.HasPrefix(sub, "parameter."):
			if name := strings.TrimPrefix(sub, "parameter."); name != "" {
				pa.Parameters[name] = typedValue(value)
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id, pa := range byID {
		if pa.Type == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return naturalLess(ids[i], ids[j]) })

	out := make([]PropertyAction, 0, len(ids))
	for _, id := range ids {
		pa := byID[id]
		if len(pa.Triggers) == 0 {
			pa.Triggers = []Trigger{TriggerPassing}
		}
		if _, err := models.NewAction(models.ActionKind(pa.Type), pa.ID, pa.BlockingType, pa.Parameters); err != nil {
			return nil, fmt.Errorf("action %s: %w", id, err)
		}
		out = append(out, *pa)
	}
	return out, nil
}

// TagFilter decides whether an action tag is executable.
type TagFilter func(tag string) bool

// AcceptAllTags accepts every tag.
func AcceptAllTags(string) bool { return true }

// NewTagFilter builds a filter from the vda5050:actionTags property. Without
// the property every tag is accepted.
func NewTagFilter(props fleet.Properties) TagFilter {
	tags, ok := props.List(fleet.PropActionTags)
	if !ok {
		return AcceptAllTags
	}
	allowed := make(map[string]bool, len(tags))
	for _, t := range tags {
		allowed[t] = true
	}
	return func(tag string) bool { return allowed[tag] }
}

// PlaceableActions returns the candidates that may be placed at a position
// where the given triggers are valid, in declaration order. An untagged action
// passes the tag check; a tagged one needs a tag accepted by all three filters.
func PlaceableActions(candidates []PropertyAction, triggers []Trigger, vehicleF, commandF, edgeF TagFilter) []models.Action {
	actions := []models.Action{}
	for _, pa := range candidates {
		if !pa.triggeredBy(triggers) || !executable(pa.Tags, vehicleF, commandF, edgeF) {
			continue
		}
		action, err := models.NewAction(models.ActionKind(pa.Type), idgen.Action.Derived(pa.Type), pa.BlockingType, pa.Parameters)
		if err != nil {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

func executable(tags []string, filters ...TagFilter) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		ok := true
		for _, f := range filters {
			if f != nil && !f(tag) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// typedValue turns a property value into a number or bool where it parses as
// one. NaN and infinities stay strings since JSON cannot carry them.
func typedValue(v string) interface{} {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return float64(i)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

// naturalLess compares strings treating runs of digits as numbers, so "2" < "10".
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, ra := leadingDigits(a)
			nb, rb := leadingDigits(b)
			ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i], s[i:]
}
