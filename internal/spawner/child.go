package spawner

import "github.com/littlehydra/daemon/internal/procchild"

// Child and ExitResult are re-exported from procchild so callers of this
// package (internal/manager) only need to import internal/spawner.
type Child = procchild.Child
type ExitResult = procchild.ExitResult
