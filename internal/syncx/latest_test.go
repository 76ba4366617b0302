package syncx

import (
	"sync"
	"testing"
)

func TestLatestPublishLoad(t *testing.T) {
	l := NewLatest(42)

	if v, ver := l.LoadVersion(); v != 42 || ver != 0 {
		t.Errorf("LoadVersion() = (%d, %d), want (42, 0)", v, ver)
	}

	if ver := l.Publish(100); ver != 1 {
		t.Errorf("Publish version = %d, want 1", ver)
	}
	if got := l.Load(); got != 100 {
		t.Errorf("Load() = %d, want 100", got)
	}
}

func TestLatestConcurrentReaders(t *testing.T) {
	l := NewLatest(0)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			l.Publish(i)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for i := 0; i < 1000; i++ {
				v := l.Load()
				if v < last {
					t.Errorf("value went backwards: %d < %d", v, last)
					return
				}
				last = v
			}
		}()
	}
	wg.Wait()

	if got := l.Load(); got != 1000 {
		t.Errorf("final value = %d, want 1000", got)
	}
}
