package utils

import "time"

// time.go - границы временных окон в UTC
//
// Дневные лимиты сделок считаются по календарному дню UTC,
// error rate - по скользящему часу.

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня UTC для указанного времени
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TrailingHour возвращает начало скользящего часового окна от now
func TrailingHour(now time.Time) time.Time {
	return now.UTC().Add(-time.Hour)
}
