package xl

// Excel stores dates as a serial count of days since an epoch that, for
// historical reasons (compatibility with 1-2-3), treats 1900 as a leap
// year. A serial of 60 therefore denotes the nonexistent "February 29,
// 1900" and every serial from 61 onward is one day ahead of the proleptic
// Gregorian calendar. This file preserves that bug deliberately: round-trip
// fidelity with real Excel files matters more than calendar correctness
// before March 1900.

const (
	msPerDay         = 24 * 60 * 60 * 1000
	excelEpochOffset = 25568.0 // days between 1899-12-31 (Excel serial 0) and the Unix epoch
	leapBugThreshold = 60      // serial 60 == the fictitious 1900-02-29
)

// TimestampMsToExcelSerial converts a Unix timestamp in milliseconds to an
// Excel date serial number, reproducing Excel's 1900 leap-year bug.
func TimestampMsToExcelSerial(ms int64) float64 {
	days := float64(ms)/msPerDay + excelEpochOffset
	if days >= leapBugThreshold {
		days++
	}
	return days
}

// ExcelSerialToTimestampMs converts an Excel date serial number back to a
// Unix timestamp in milliseconds. Serials inside the fictitious Feb-29-1900
// gap ([60, 61), the range TimestampMsToExcelSerial never produces) have no
// unambiguous inverse and yield (0, false).
func ExcelSerialToTimestampMs(serial float64) (int64, bool) {
	if serial < 0 {
		return 0, false
	}
	days := serial
	switch {
	case days >= float64(leapBugThreshold) && days < float64(leapBugThreshold+1):
		// the nonexistent Feb 29 1900 itself
		return 0, false
	case days >= float64(leapBugThreshold+1):
		days--
	}
	ms := (days - excelEpochOffset) * msPerDay
	return int64(ms), true
}
