// Package rating converts between server rating fields (a 0-5 userRating and
// a starred timestamp) and player ratings (a 5 star scale and a heart).
package rating

import (
	"fmt"
	"math"
	"time"
)

// MaxStars is the top of the star scale.
const MaxStars = 5

// Stars is a rating on a 5 star scale. The zero value is unrated.
type Stars struct {
	value float64
	rated bool
}

// Unrated returns a rating with no stars set.
func Unrated() Stars {
	return Stars{}
}

// NewStars returns a rating of n stars, clamped to 0..MaxStars.
// Zero or less is unrated.
func NewStars(n float64) Stars {
	if n <= 0 || math.IsNaN(n) {
		return Unrated()
	}
	if n > MaxStars {
		n = MaxStars
	}
	return Stars{value: n, rated: true}
}

// Rated reports whether stars were set.
func (s Stars) Rated() bool {
	return s.rated
}

// Value returns the star count, 0 when unrated.
func (s Stars) Value() float64 {
	return s.value
}

// Max returns the scale size.
func (s Stars) Max() int {
	return MaxStars
}

func (s Stars) String() string {
	if !s.rated {
		return "unrated"
	}
	return fmt.Sprintf("%g/%d", s.value, MaxStars)
}

// Heart is the liked flag.
type Heart struct {
	Liked bool
}

// FromServer maps server fields to player ratings. A userRating of 0 means
// absent: the server does not distinguish "never rated" from "cleared".
// Liked depends only on whether starred is present.
func FromServer(userRating int, starred *time.Time) (Stars, Heart) {
	var stars Stars
	if userRating > 0 {
		stars = NewStars(float64(userRating))
	} else {
		stars = Unrated()
	}
	return stars, Heart{Liked: starred != nil}
}

// ToServer maps a star rating to the server's userRating. Unrated maps to 0,
// which clears the rating on the server.
func ToServer(stars Stars) int {
	if !stars.rated {
		return 0
	}
	n := int(math.Round(stars.value))
	if n < 1 {
		n = 1
	}
	if n > MaxStars {
		n = MaxStars
	}
	return n
}

// ToStarred reports whether the item should be starred on the server.
func ToStarred(heart Heart) bool {
	return heart.Liked
}
