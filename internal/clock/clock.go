// Package clock はポーリング処理から実時間を切り離すための時計抽象です。
// 本番では Real、テストでは Fake を使います。
package clock

import (
	"sync"
	"time"
)

// Clock は現在時刻の取得と待機を提供します
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

// Real は time パッケージに委譲する Clock を返します
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time         { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// FakeClock は Sleep で即座に時刻を進めるテスト用の Clock
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// Fake は start から始まる FakeClock を返します
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep は待たずに d だけ時刻を進めます
func (f *FakeClock) Sleep(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.sleeps = append(f.sleeps, d)
}

// Advance は時刻を d だけ進めます
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Sleeps はこれまでの Sleep 呼び出しを返します
func (f *FakeClock) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}
