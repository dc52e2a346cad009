package bffss

import "fmt"

type ErrRunNotFound struct {
	RunID
}

func (e ErrRunNotFound) Error() string {
	return fmt.Sprintf("run %d not found", e.RunID)
}

type ErrNoCheckpoint struct {
	RunID
}

func (e ErrNoCheckpoint) Error() string {
	return fmt.Sprintf("run %d has no checkpoints", e.RunID)
}
