// Package shutdown runs registered cleanup hooks before the process exits.
package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExitFunc ends the process. Replaced in tests.
var ExitFunc = os.Exit

type hook struct {
	name string
	fn   func()
}

var (
	mu    sync.Mutex
	hooks []hook
	once  sync.Once
)

// Register adds a hook. Hooks run in reverse registration order.
func Register(name string, fn func()) {
	mu.Lock()
	hooks = append(hooks, hook{name: name, fn: fn})
	mu.Unlock()
}

// Run executes the hooks once without exiting.
func Run() {
	once.Do(func() {
		mu.Lock()
		pending := append([]hook(nil), hooks...)
		mu.Unlock()

		for i := len(pending) - 1; i >= 0; i-- {
			log.Info().Str("hook", pending[i].name).Msg("Running shutdown hook")
			pending[i].fn()
		}
	})
}

func Shutdown() {
	Run()
	log.Info().Msg("Shutdown complete")
	ExitFunc(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Run()
	ExitFunc(1)
}

// reset clears the registered hooks. Used by tests.
func reset() {
	mu.Lock()
	hooks = nil
	once = sync.Once{}
	mu.Unlock()
}
