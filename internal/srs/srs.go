package srs

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Rating is the user's recall grade for a card review, 1 (Again) to 5 (Perfect).
type Rating int

const (
	Again   Rating = 1
	Hard    Rating = 2
	Good    Rating = 3
	Easy    Rating = 4
	Perfect Rating = 5
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy", Perfect: "Perfect"}

// String returns the rating name, or "Rating(n)" when out of range.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// IsValid reports whether r is within Again..Perfect.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Perfect
}

// ParseRating accepts a rating name (case-insensitive) or its number.
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		r := Rating(n)
		if !r.IsValid() {
			return 0, fmt.Errorf("rating %d out of range 1-5", n)
		}
		return r, nil
	}
	for r := Again; r <= Perfect; r++ {
		if strings.EqualFold(s, ratingNames[r]) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rating %q", s)
}

// Params holds the tunables of the interval and ease formulas.
type Params struct {
	HardFactor   float64 // growth applied on Hard
	EasyBonus    float64 // extra multiplier on Easy
	PerfectBonus float64 // extra multiplier on Perfect
	FirstGood    int     // first interval (days) for Good on a new card
	FirstEasy    int     // first interval (days) for Easy on a new card
	FirstPerfect int     // first interval (days) for Perfect on a new card
	EaseBase     float64 // ease multiplier = EaseBase + rating*EaseStep
	EaseStep     float64
}

// DefaultParams returns the stock simplified SM-2 parameters.
func DefaultParams() *Params {
	return &Params{
		HardFactor:   1.2,
		EasyBonus:    1.3,
		PerfectBonus: 1.5,
		FirstGood:    1,
		FirstEasy:    2,
		FirstPerfect: 4,
		EaseBase:     0.8,
		EaseStep:     0.04,
	}
}

// CardState is the scheduling-relevant part of a card.
type CardState struct {
	Interval   int
	EaseFactor float64
}

// Schedule is the outcome of rating a card.
type Schedule struct {
	Interval   int
	EaseFactor float64
	LastReview time.Time
	NextReview time.Time
}

// NextState rates a card at now. It is pure: persisting the result is up to
// the caller.
func (p *Params) NextState(current CardState, rating Rating, now time.Time) Schedule {
	rating = clamp(rating)
	interval := p.NextInterval(current.Interval, current.EaseFactor, rating)
	return Schedule{
		Interval:   interval,
		EaseFactor: p.NextEase(current.EaseFactor, rating),
		LastReview: now,
		NextReview: NextDueDate(now, interval),
	}
}

// NextInterval computes the next interval in days. It uses the ease factor
// the card had before this review.
func (p *Params) NextInterval(interval int, ease float64, rating Rating) int {
	ivl := float64(interval)
	switch clamp(rating) {
	case Again:
		return 1
	case Hard:
		return max(1, int(math.Ceil(ivl*p.HardFactor)))
	case Good:
		if interval == 0 {
			return p.FirstGood
		}
		return int(math.Ceil(ivl * ease))
	case Easy:
		if interval == 0 {
			return p.FirstEasy
		}
		return int(math.Ceil(ivl * ease * p.EasyBonus))
	default:
		if interval == 0 {
			return p.FirstPerfect
		}
		return int(math.Ceil(ivl * ease * p.PerfectBonus))
	}
}

// NextEase scales the ease factor by EaseBase + rating*EaseStep. There is no
// floor: repeated low ratings keep shrinking it.
func (p *Params) NextEase(ease float64, rating Rating) float64 {
	return ease * (p.EaseBase + float64(clamp(rating))*p.EaseStep)
}

// NextDueDate returns the moment interval whole days after from.
func NextDueDate(from time.Time, interval int) time.Time {
	return from.Add(time.Duration(interval) * 24 * time.Hour)
}

func clamp(r Rating) Rating {
	if r < Again {
		return Again
	}
	if r > Perfect {
		return Perfect
	}
	return r
}
