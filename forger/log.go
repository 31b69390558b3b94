package forger

import "github.com/Leasehold/leasehold/logger"

var log, _ = logger.Get(logger.SubsystemTags.FRGR)
