package changedetection

import "github.com/scenediff/scenediff/pointcloud"

// ErrPreconditionViolation is returned, wrapped with details, when inputs or parameters cannot be
// compared. Every stage of the pipeline reports empty inputs with it as well.
var ErrPreconditionViolation = pointcloud.ErrPreconditionViolation
