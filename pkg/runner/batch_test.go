package runner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wentf9/sshgate/pkg/models"
)

func TestRunParallel(t *testing.T) {
	var ids []models.Identity
	for i := range 5 {
		ids = append(ids, models.Identity{Name: fmt.Sprintf("srv%d", i), Host: "10.0.0.1", Username: "root", Port: 22})
	}
	failing := errors.New("unreachable")

	var failures int
	seen := make(map[string]bool)
	for res := range RunParallel(ids, 2, func(id models.Identity) error {
		if id.Name == "srv3" {
			return failing
		}
		return nil
	}) {
		seen[res.Identity.Name] = true
		if res.Error != nil {
			failures++
			if !errors.Is(res.Error, failing) {
				t.Errorf("unexpected error for %s: %v", res.Identity.Name, res.Error)
			}
		}
	}
	if len(seen) != 5 {
		t.Errorf("got results for %d targets, want 5", len(seen))
	}
	if failures != 1 {
		t.Errorf("got %d failures, want 1", failures)
	}
}
