package keyedmutex_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cratery/cratery/internal/platform/keyedmutex"
)

func TestSameKeySerializes(t *testing.T) {
	m := keyedmutex.New()

	const workers = 32

	var (
		wg      sync.WaitGroup
		counter int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := m.Lock("widgets")
			defer unlock()

			counter++
		}()
	}

	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestDistinctKeysDoNotBlockEachOther(t *testing.T) {
	m := keyedmutex.New()

	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})

	go func() {
		unlockB := m.Lock("b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestIdleKeyIsReacquirable(t *testing.T) {
	m := keyedmutex.New()

	unlock := m.Lock("widgets")
	unlock()

	unlock = m.Lock("widgets")
	unlock()
}
