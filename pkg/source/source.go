package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"
)

// DateLayout is the calendar-date format observations are keyed by.
const DateLayout = "2006-01-02"

// Observation is one (owner, date, article) metrics snapshot.
type Observation struct {
	OwnerID    string `json:"owner_id" db:"owner_id"`
	ObservedOn string `json:"observed_on" db:"observed_on"`
	ItemID     int64  `json:"item_id" db:"item_id"`
	Title      string `json:"title" db:"title"`
	Views      int64  `json:"views" db:"views"`
	Likes      int64  `json:"likes" db:"likes"`
	Comments   int64  `json:"comments" db:"comments"`
}

// DateOf formats t as an observation date in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// Today is the observation date for the current local day.
func Today() string {
	return DateOf(time.Now())
}

// titleIDSpace bounds synthesized ids to ten decimal digits.
var titleIDSpace = big.NewInt(10_000_000_000)

// TitleID derives a stable negative item id from an article title. Platform
// ids are never negative, so the two id spaces cannot collide.
func TitleID(title string) int64 {
	sum := md5.Sum([]byte(title))
	n, _ := new(big.Int).SetString(hex.EncodeToString(sum[:]), 16)
	id := new(big.Int).Mod(n, titleIDSpace).Int64()
	if id == 0 {
		id = titleIDSpace.Int64()
	}
	return -id
}

// TransportError reports a page request that failed. It ends pagination but
// is not fatal: whatever was collected before it stands.
type TransportError struct {
	Page int
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Entry is one article row from a listing page, already normalized.
type Entry struct {
	ID       int64
	Title    string
	Views    int64
	Likes    int64
	Comments int64
}

// PageSource serves numbered listing pages starting at 1.
type PageSource interface {
	Page(ctx context.Context, n int) ([]Entry, error)
}

// Result is the outcome of a paginated fetch.
type Result struct {
	Observations []Observation
	Pages        int
	// Err is the transport failure that stopped pagination early, if any.
	// The observations collected before it are still valid.
	Err error
}

// Paginate walks pages 1, 2, 3, ... of src until a page comes back empty or
// a request fails, and returns the rows gathered along the way as
// observations for owner on day.
func Paginate(ctx context.Context, src PageSource, owner, day string) Result {
	var res Result
	for page := 1; ; page++ {
		entries, err := src.Page(ctx, page)
		if err != nil {
			res.Err = &TransportError{Page: page, Err: err}
			slog.Warn("pagination stopped", "page", page, "collected", len(res.Observations), "err", err)
			return res
		}
		if len(entries) == 0 {
			return res
		}
		res.Pages++
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			res.Observations = append(res.Observations, Observation{
				OwnerID:    owner,
				ObservedOn: day,
				ItemID:     e.ID,
				Title:      e.Title,
				Views:      e.Views,
				Likes:      e.Likes,
				Comments:   e.Comments,
			})
		}
	}
}
