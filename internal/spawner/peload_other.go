//go:build !windows

package spawner

import (
	"context"

	"github.com/littlehydra/daemon/internal/lherr"
)

func (s *Spawner) spawnPELoad(ctx context.Context, path string, args []string, workingDir string) (*Result, error) {
	return nil, lherr.Newf(lherr.ProcessCreation, "spawner.spawnPELoad", "peload backend requires windows, built on this platform without it")
}
