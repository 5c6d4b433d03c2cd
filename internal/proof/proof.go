// Package proof validates photo evidence attached to a task
// submission. It extracts the embedded capture timestamp from the
// image and compares it against the submission time to produce a
// trust signal. Validation is advisory: a photo that cannot be
// verified never blocks submission, it just goes unflagged.
package proof

import (
	"bytes"
	"fmt"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// DefaultMaxAge is the allowed gap between capture and submission.
const DefaultMaxAge = 5 * time.Minute

// exifTimeLayout is the timestamp layout used by EXIF date fields.
const exifTimeLayout = "2006:01:02 15:04:05"

// Result is the verdict for one photo.
type Result struct {
	Valid        bool       `json:"is_valid"`
	PhotoTakenAt *time.Time `json:"photo_timestamp,omitempty"`
	CheckedAt    time.Time  `json:"current_timestamp"`
	MinutesDiff  *int       `json:"minutes_difference,omitempty"`
	Err          string     `json:"error,omitempty"`
}

// Unverifiable reports whether the photo carried no usable timestamp.
// Callers treat this as "proceed without penalty", not as fraud.
func (r Result) Unverifiable() bool {
	return r.Err != ""
}

// Validate checks the capture timestamp embedded in an image payload
// against now. It never returns a Go error: decode and parse failures
// resolve to a Result with Err set, so a bad photo can never block a
// task submission.
func Validate(data []byte, maxAge time.Duration, now time.Time) Result {
	res := Result{CheckedAt: now}

	if len(data) == 0 {
		res.Err = "empty image payload"
		return res
	}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		res.Err = fmt.Sprintf("no EXIF metadata: %v", err)
		return res
	}

	raw, err := captureTimestamp(x)
	if err != nil {
		res.Err = "no EXIF timestamp found in photo"
		return res
	}

	takenAt, err := time.ParseInLocation(exifTimeLayout, raw, now.Location())
	if err != nil {
		res.Err = fmt.Sprintf("could not parse EXIF timestamp %q", raw)
		return res
	}

	diff := now.Sub(takenAt)
	if diff < 0 {
		diff = -diff
	}

	minutes := int(diff / time.Minute)
	res.PhotoTakenAt = &takenAt
	res.MinutesDiff = &minutes
	res.Valid = diff <= maxAge
	return res
}

// captureTimestamp returns the first present date field, preferring
// the original capture time, then the generic modify time, then the
// digitized time.
func captureTimestamp(x *exif.Exif) (string, error) {
	for _, field := range []exif.FieldName{
		exif.DateTimeOriginal,
		exif.DateTime,
		exif.DateTimeDigitized,
	} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil || s == "" {
			continue
		}
		return s, nil
	}
	return "", fmt.Errorf("no date field present")
}
