package values

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Timestamp is a timezone-naive instant with microsecond precision,
// stored as microseconds since 1970-01-01T00:00:00 (the Unix epoch, on
// the proleptic Gregorian calendar). Arithmetic and comparison are
// plain integer operations.
type Timestamp int64

const microsPerSecond = 1_000_000

// MinTimestamp and MaxTimestamp are the sentinel values produced by the
// "0000-00-00" / "9999-99-99" literal forms (§4.4).
const (
	MinTimestamp Timestamp = math.MinInt64
	MaxTimestamp Timestamp = math.MaxInt64
)

var (
	reDateMin = regexp.MustCompile(`^0000-00-00(?:T00:00:00(?:\.0{0,6})?)?$`)
	reDateMax = regexp.MustCompile(`^9999-99-99(?:T99:99:99(?:\.9{0,6})?)?$`)
)

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// daysFromCivil returns a day number for the given proleptic-Gregorian
// date; only the difference between two results is meaningful. It
// allows the same date math as Python's datetime without importing a
// calendar library.
func daysFromCivil(year, month, day int) int64 {
	y := int64(year)
	if month <= 2 {
		y--
	}
	era := y
	if era < 0 {
		era -= 399
	}
	era /= 400
	yoe := y - era*400
	var mp int64
	if month > 2 {
		mp = int64(month) - 3
	} else {
		mp = int64(month) + 9
	}
	doy := (153*mp+2)/5 + int64(day) - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*146097 + doe - 730000 // offset irrelevant: only differences are observed externally via Sub
}

// ParseTimestamp parses the lexical form §4.4 describes:
// YYYY-MM-DD[THH:MM:SS[.ffffff]], plus the 0000-00-00 / 9999-99-99
// min/max sentinels.
func ParseTimestamp(s string) (Timestamp, error) {
	if reDateMin.MatchString(s) {
		return MinTimestamp, nil
	}
	if reDateMax.MatchString(s) {
		return MaxTimestamp, nil
	}

	var year, month, day, hour, min, sec, micro int
	var fracStr string
	datePart, timePart, hasTime := strings.Cut(s, "T")

	if _, err := fmt.Sscanf(datePart, "%4d-%2d-%2d", &year, &month, &day); err != nil {
		return 0, &ErrInvalidLiteral{KindTimestamp, s}
	}
	if month < 1 || month > 12 || day < 1 {
		return 0, &ErrInvalidLiteral{KindTimestamp, s}
	}
	maxDay := daysInMonth[month-1]
	if month == 2 && isLeap(year) {
		maxDay = 29
	}
	if day > maxDay {
		return 0, &ErrInvalidLiteral{KindTimestamp, s}
	}

	if hasTime {
		clock, frac, hasFrac := strings.Cut(timePart, ".")
		if _, err := fmt.Sscanf(clock, "%2d:%2d:%2d", &hour, &min, &sec); err != nil {
			return 0, &ErrInvalidLiteral{KindTimestamp, s}
		}
		if hour > 23 || min > 59 || sec > 59 {
			return 0, &ErrInvalidLiteral{KindTimestamp, s}
		}
		if hasFrac {
			fracStr = frac
			if len(fracStr) > 6 {
				return 0, &ErrInvalidLiteral{KindTimestamp, s}
			}
			for len(fracStr) < 6 {
				fracStr += "0"
			}
			v, err := strconv.Atoi(fracStr)
			if err != nil {
				return 0, &ErrInvalidLiteral{KindTimestamp, s}
			}
			micro = v
		}
	}

	days := daysFromCivil(year, month, day) - daysFromCivil(1970, 1, 1)
	secs := days*86400 + int64(hour)*3600 + int64(min)*60 + int64(sec)
	return Timestamp(secs*microsPerSecond + int64(micro)), nil
}

// Sub returns t - u in seconds as a real number, the type arithmetic
// rule §4.4 assigns to Timestamp-Timestamp.
func (t Timestamp) Sub(u Timestamp) float64 {
	return float64(int64(t)-int64(u)) / microsPerSecond
}

// SubMillis behaves like Sub but truncates to millisecond precision
// first, the behavior the embedded (SQLite) backend is documented to
// use (§4.4, §9): "Time interval precision on the embedded backend is
// millisecond-capped ... arithmetic only".
func (t Timestamp) SubMillis(u Timestamp) float64 {
	tm := int64(t) / 1000
	um := int64(u) / 1000
	return float64(tm-um) / 1000
}

// IsDefined reports whether this is a real timestamp and not one of
// the unbounded min/max sentinels used in range queries.
func (t Timestamp) IsDefined() bool {
	return t != MinTimestamp && t != MaxTimestamp
}
