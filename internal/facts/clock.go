package facts

import (
	"fmt"
	"time"
)

// Clock reports the current date/time as a prompt-ready fact. Injectable so
// tests can pin the time.
type Clock interface {
	NowFact() string
}

var koreanWeekdays = [...]string{"일요일", "월요일", "화요일", "수요일", "목요일", "금요일", "토요일"}

// KSTClock renders the current time in Korea Standard Time.
type KSTClock struct {
	now func() time.Time
	loc *time.Location
}

// NewKSTClock builds a clock pinned to Asia/Seoul. A nil now func uses
// time.Now.
func NewKSTClock(now func() time.Time) *KSTClock {
	if now == nil {
		now = time.Now
	}
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return &KSTClock{now: now, loc: loc}
}

// NowFact returns the current date/time as a short factual sentence.
func (c *KSTClock) NowFact() string {
	now := c.now().In(c.loc)
	return fmt.Sprintf("현재 날짜와 시간: %d년 %d월 %d일 %s %02d:%02d (KST)",
		now.Year(), int(now.Month()), now.Day(), koreanWeekdays[now.Weekday()], now.Hour(), now.Minute())
}
