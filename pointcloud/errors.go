package pointcloud

import "github.com/pkg/errors"

// ErrPreconditionViolation is returned, wrapped with details, when the inputs or parameters of an
// operation cannot be worked on: clouds of different lengths, empty clouds, or invalid thresholds.
var ErrPreconditionViolation = errors.New("precondition violation")

// ErrEmptyCloud is returned by stages that need at least one valid point to work on.
var ErrEmptyCloud = errors.Wrap(ErrPreconditionViolation, "point cloud has no valid points")
