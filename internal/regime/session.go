package regime

import (
	"strings"
	"sync"
	"time"

	"zerodte/internal/models"
)

// SessionState accumulates intraday VWAP, range and the prior close for one underlying.
// The owner calls Reset with each new trading date key.
type SessionState struct {
	mu sync.Mutex

	date      string
	prevClose float64
	lastPrice float64
	lastAt    time.Time
	pv        float64
	volume    float64
	high      float64
	low       float64
}

func NewSessionState() *SessionState {
	return &SessionState{}
}

// Reset starts a new session. The last observed price of the previous session becomes the prior close.
func (s *SessionState) Reset(tradingDateKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.date == tradingDateKey {
		return
	}
	if s.date != "" && s.lastPrice > 0 {
		s.prevClose = s.lastPrice
	}
	s.date = tradingDateKey
	s.lastPrice = 0
	s.lastAt = time.Time{}
	s.pv = 0
	s.volume = 0
	s.high = 0
	s.low = 0
}

func (s *SessionState) Observe(price, volume float64, at time.Time) {
	if price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume > 0 {
		s.pv += price * volume
		s.volume += volume
	}
	if s.high == 0 || price > s.high {
		s.high = price
	}
	if s.low == 0 || price < s.low {
		s.low = price
	}
	s.lastPrice = price
	s.lastAt = at
}

func (s *SessionState) SetPrevClose(price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prevClose = price
}

func (s *SessionState) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

func (s *SessionState) VWAP() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.volume <= 0 {
		return 0
	}
	return s.pv / s.volume
}

func (s *SessionState) PrevClose() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevClose
}

func (s *SessionState) LastObserved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAt
}

// Fill records the snapshot trade and fills VWAP, day range and prior close the provider left empty.
// A trade no newer than the last one observed adds no volume.
func (s *SessionState) Fill(snap models.MarketSnapshot) models.MarketSnapshot {
	volume := snap.Volume
	if last := s.LastObserved(); !last.IsZero() && !snap.Timestamp.After(last) {
		volume = 0
	}
	s.Observe(snap.UnderlyingPrice, volume, snap.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.VWAP <= 0 && s.volume > 0 {
		snap.VWAP = s.pv / s.volume
	}
	if snap.DayHigh <= 0 {
		snap.DayHigh = s.high
	}
	if snap.DayLow <= 0 {
		snap.DayLow = s.low
	}
	if snap.PrevClose <= 0 {
		snap.PrevClose = s.prevClose
	}
	return snap
}

// Sessions hands out one SessionState per symbol.
type Sessions struct {
	mu sync.Mutex
	m  map[string]*SessionState
}

func NewSessions() *Sessions {
	return &Sessions{m: map[string]*SessionState{}}
}

func (b *Sessions) For(symbol string) *SessionState {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.m[symbol]
	if !ok {
		st = NewSessionState()
		b.m[symbol] = st
	}
	return st
}
