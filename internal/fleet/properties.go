package fleet

import (
	"strconv"
	"strings"
)

// Property keys understood by the order mapping.
const (
	PropDeviationXY        = "vda5050:deviationXY"
	PropDeviationTheta     = "vda5050:deviationTheta"
	PropDeviationXYPadding = "vda5050:deviationXYPadding"
	PropMapID              = "vda5050:mapId"
	PropActionTags         = "vda5050:actionTags"
	PropActionPrefix       = "vda5050:action."
	PropOrientationForward = "vda5050:orientationForward"
	PropOrientationReverse = "vda5050:orientationReverse"
	PropRotationAllowed    = "vda5050:rotationAllowed"
)

// Properties are free-form key/value pairs attached to points, paths,
// vehicles and commands.
type Properties map[string]string

// Get returns the trimmed value of key.
func (p Properties) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Float parses key as a float. Missing or malformed values report false.
func (p Properties) Float(key string) (float64, bool) {
	v, ok := p.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool parses key as a bool. Missing or malformed values report false.
func (p Properties) Bool(key string) (bool, bool) {
	v, ok := p.Get(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// List splits a comma separated value, dropping empty entries.
func (p Properties) List(key string) ([]string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return nil, false
	}
	return SplitList(v), true
}

// WithPrefix returns all entries whose key starts with prefix.
func (p Properties) WithPrefix(prefix string) Properties {
	out := make(Properties)
	for k, v := range p {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
