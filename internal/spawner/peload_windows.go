//go:build windows

package spawner

import (
	"context"

	"github.com/littlehydra/daemon/internal/peload"
)

func (s *Spawner) spawnPELoad(ctx context.Context, path string, args []string, workingDir string) (*Result, error) {
	child, output, err := peload.Launch(ctx, path, args, workingDir)
	if err != nil {
		return nil, err
	}
	return &Result{Child: child, Output: output}, nil
}
