package txpool

import "github.com/Leasehold/leasehold/logger"

var log, _ = logger.Get(logger.SubsystemTags.TXPL)
