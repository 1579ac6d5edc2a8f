package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/oeis/internal/jobs"
	"github.com/kalambet/oeis/internal/oeis"
)

// WebcamIntervals are the refresh intervals offered for webcam mode. Zero
// means manual refresh.
var WebcamIntervals = []time.Duration{
	0,
	5 * time.Second,
	10 * time.Second,
	20 * time.Second,
	30 * time.Second,
	time.Minute,
}

// ParseWebcamInterval accepts "manual", "off", "0" or one of WebcamIntervals
// written as a Go duration.
func ParseWebcamInterval(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual", "off", "0":
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err == nil {
		for _, iv := range WebcamIntervals {
			if d == iv {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown webcam interval %q (valid: manual, 5s, 10s, 20s, 30s, 1m)", s)
}

// WebcamIntervalLabel is the short form used in status lines.
func WebcamIntervalLabel(d time.Duration) string {
	if d <= 0 {
		return "manual"
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return fmt.Sprintf("%ds", d/time.Second)
}

// webcam is the auto-refresh state. next is zero while a pick is in flight
// or when refresh is manual.
type webcam struct {
	on       bool
	category oeis.Category
	interval time.Duration
	next     time.Time
}

// StartWebcam turns on webcam mode: a random entry from category is shown
// now and then again every interval. A zero interval means manual refresh
// through WebcamNext.
func (s *State) StartWebcam(category oeis.Category, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webcam = webcam{on: true, category: category, interval: max(interval, 0)}
	s.startWebcamPick()
	s.touch()
}

// WebcamNext shows the next webcam pick right away. It reports false when
// webcam mode is off.
func (s *State) WebcamNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.webcam.on {
		return false
	}
	s.startWebcamPick()
	s.touch()
	return true
}

// StopWebcam turns webcam mode off. A pick in flight still lands.
func (s *State) StopWebcam() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.webcam.on {
		return
	}
	s.webcam = webcam{}
	s.status = "Webcam stopped"
	s.touch()
}

func (s *State) startWebcamPick() {
	s.webcam.next = time.Time{}
	s.sup.Start(jobs.RandomJob{Category: s.webcam.category})
	s.status = "Webcam: " + s.webcam.category.Title()
}

// scheduleWebcam arms the next automatic pick once the previous one landed.
func (s *State) scheduleWebcam() {
	if s.webcam.on && s.webcam.interval > 0 {
		s.webcam.next = s.opts.Now().Add(s.webcam.interval)
	}
}

func (s *State) webcamDue() bool {
	if !s.webcam.on || s.webcam.next.IsZero() || s.sup.Busy(jobs.SlotRandom) {
		return false
	}
	return !s.opts.Now().Before(s.webcam.next)
}
