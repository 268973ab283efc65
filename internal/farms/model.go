package farms

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Farm is a listing as served by the remote data service. Coordinates
// are optional as a pair: a farm with only one of lat/lng is treated as
// unmappable and skipped by radius and distance operations.
type Farm struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Postcode  string   `json:"postcode"`
	Operators []string `json:"operators"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	Reviews   []Review `json:"reviews,omitempty"`
}

// Review is a worker-submitted rating. Rating 0 means unset; aggregation
// substitutes 3 (observed behavior of the data source, kept as-is).
type Review struct {
	ID        string    `json:"id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Operator  string    `json:"operator,omitempty"`
	Earnings  string    `json:"earnings,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Date      time.Time `json:"date"`
	UserEmail string    `json:"userEmail"`
	Flags     int       `json:"flags"`
}

// Coords is a latitude/longitude pair.
type Coords struct {
	Lat float64
	Lng float64
}

// TypeInfo describes a produce category for display.
type TypeInfo struct {
	Tag   string
	Name  string
	Emoji string
}

// Types lists the recognized produce categories in display order.
var Types = []TypeInfo{
	{Tag: "vegetables", Name: "Vegetable farm", Emoji: "🥬"},
	{Tag: "tomatoes", Name: "Tomato farm", Emoji: "🍅"},
	{Tag: "berries", Name: "Berry farm", Emoji: "🍓"},
	{Tag: "mushrooms", Name: "Mushroom farm", Emoji: "🍄"},
	{Tag: "flowers", Name: "Flower farm", Emoji: "🌷"},
	{Tag: "apples", Name: "Apple farm", Emoji: "🍎"},
}

// TypeName returns the display name for a type tag, falling back to the
// raw tag for anything unrecognized.
func TypeName(tag string) string {
	for _, t := range Types {
		if t.Tag == tag {
			return t.Name
		}
	}
	return tag
}

// TypeEmoji returns the marker emoji for a type tag.
func TypeEmoji(tag string) string {
	for _, t := range Types {
		if t.Tag == tag {
			return t.Emoji
		}
	}
	return "🏭"
}

// Mappable reports whether the farm carries a full coordinate pair.
func (f Farm) Mappable() bool {
	return f.Lat != nil && f.Lng != nil
}

// Hidden reports whether the review crossed the moderation flag threshold.
func (rv Review) Hidden(flagThreshold int) bool {
	return rv.Flags >= flagThreshold
}

// VisibleReviews returns reviews below the flag threshold, in order.
// Flagged reviews stay in the Reviews slice; they are only excluded
// from rendering and aggregation.
func (f Farm) VisibleReviews(flagThreshold int) []Review {
	out := make([]Review, 0, len(f.Reviews))
	for _, rv := range f.Reviews {
		if !rv.Hidden(flagThreshold) {
			out = append(out, rv)
		}
	}
	return out
}

var earningsRE = regexp.MustCompile(`£?(\d+(?:,\d+)*)`)

// ParseEarnings pulls the first numeric amount out of a free-text
// earnings string like "£8,500 over 3 months". Returns 0 when nothing
// numeric is present.
func ParseEarnings(s string) int {
	m := earningsRE.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// MaxEarnings returns the highest single-review earnings amount for the
// farm, parsed numerically.
func (f Farm) MaxEarnings() int {
	max := 0
	for _, rv := range f.Reviews {
		if n := ParseEarnings(rv.Earnings); n > max {
			max = n
		}
	}
	return max
}

// ValidationError reports a locally rejected field. Validation failures
// never reach the network or the offline queue.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

var (
	postcodeRE = regexp.MustCompile(`(?i)^[A-Z]{1,2}[0-9R][0-9A-Z]?\s?[0-9][A-Z]{2}$`)
	emailRE    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidPostcode reports whether s looks like a UK postcode.
func ValidPostcode(s string) bool {
	return postcodeRE.MatchString(strings.TrimSpace(s))
}

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRE.MatchString(strings.TrimSpace(s))
}

// NormalizePostcode uppercases and trims a postcode.
func NormalizePostcode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// FarmDraft is user input for an add-farm submission.
type FarmDraft struct {
	Type      string
	Name      string
	Address   string
	Postcode  string
	Operators []string
	UserEmail string
	// Optional first review attached to the new farm.
	Rating   int
	Comment  string
	Earnings string
	Duration string
}

// ReviewDraft is user input for an add-review submission.
type ReviewDraft struct {
	FarmID    string
	Rating    int
	Comment   string
	Operator  string
	Earnings  string
	Duration  string
	UserEmail string
}

// Validate rejects malformed farm submissions before any network call.
func (d FarmDraft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	known := false
	for _, t := range Types {
		if t.Tag == d.Type {
			known = true
			break
		}
	}
	if !known {
		return &ValidationError{Field: "type", Reason: "unknown farm type"}
	}
	if !ValidPostcode(d.Postcode) {
		return &ValidationError{Field: "postcode", Reason: "invalid UK postcode format"}
	}
	if !emailRE.MatchString(d.UserEmail) {
		return &ValidationError{Field: "email", Reason: "invalid email address"}
	}
	if d.Rating != 0 && (d.Rating < 1 || d.Rating > 5) {
		return &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	if err := validateEarnings(d.Earnings); err != nil {
		return err
	}
	return nil
}

// Validate rejects malformed review submissions before any network call.
func (d ReviewDraft) Validate() error {
	if d.FarmID == "" {
		return &ValidationError{Field: "farmId", Reason: "required"}
	}
	if d.Rating < 1 || d.Rating > 5 {
		return &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	if !emailRE.MatchString(d.UserEmail) {
		return &ValidationError{Field: "email", Reason: "invalid email address"}
	}
	if err := validateEarnings(d.Earnings); err != nil {
		return err
	}
	return nil
}

func validateEarnings(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	digits := strings.ReplaceAll(strings.TrimPrefix(s, "£"), ",", "")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return &ValidationError{Field: "earnings", Reason: "must be a number"}
	}
	if n < 0 {
		return &ValidationError{Field: "earnings", Reason: "must not be negative"}
	}
	return nil
}

// FormatEarnings renders a raw numeric earnings entry the way the data
// service stores it ("£8,500").
func FormatEarnings(amount int, symbol string) string {
	if amount <= 0 {
		return ""
	}
	s := strconv.Itoa(amount)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return symbol + b.String()
}
