package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GARRISON_TEST_MODE") == "" {
			_ = os.Setenv("GARRISON_TEST_MODE", "1")
		}
	})
}
