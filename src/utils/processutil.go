package utils

import (
	"time"

	"github.com/go-gota/gota/dataframe"
)

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// helper: does the DataFrame carry this column
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// DateFormats are the calendar layouts the dataset has been seen to use.
var DateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
}

// TimeFormats are the clock layouts for the order-time column.
var TimeFormats = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
	"2006-01-02 15:04:05",
}

// ParseDate tries each known date layout in turn.
func ParseDate(s string) (time.Time, bool) {
	for _, format := range DateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseClock tries each known time-of-day layout in turn.
func ParseClock(s string) (time.Time, bool) {
	for _, format := range TimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
