package types

import (
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
)

// StatusVerdict is the flight status code an oracle reports.
type StatusVerdict uint8

const (
	Unknown       StatusVerdict = 0
	OnTime        StatusVerdict = 10
	LateAirline   StatusVerdict = 20
	LateWeather   StatusVerdict = 30
	LateTechnical StatusVerdict = 40
	LateOther     StatusVerdict = 50
)

var verdicts = []StatusVerdict{Unknown, OnTime, LateAirline, LateWeather, LateTechnical, LateOther}

var verdictNames = map[StatusVerdict]string{
	Unknown:       "unknown",
	OnTime:        "on_time",
	LateAirline:   "late_airline",
	LateWeather:   "late_weather",
	LateTechnical: "late_technical",
	LateOther:     "late_other",
}

// Verdicts returns the fixed set of status codes in ascending order.
func Verdicts() []StatusVerdict {
	out := make([]StatusVerdict, len(verdicts))
	copy(out, verdicts)
	return out
}

func (v StatusVerdict) Valid() bool {
	_, ok := verdictNames[v]
	return ok
}

func (v StatusVerdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}

	return "status(" + strconv.Itoa(int(v)) + ")"
}

// ParseVerdict accepts a verdict name ("late_weather") or its numeric code ("30").
func ParseVerdict(s string) (StatusVerdict, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if code, err := strconv.ParseUint(s, 10, 8); err == nil {
		v := StatusVerdict(code)
		if !v.Valid() {
			return 0, errorsmod.Wrapf(ErrVerdictSource, "unknown status code %d", code)
		}
		return v, nil
	}

	for v, name := range verdictNames {
		if name == s {
			return v, nil
		}
	}

	return 0, errorsmod.Wrapf(ErrVerdictSource, "unknown status %q", s)
}
