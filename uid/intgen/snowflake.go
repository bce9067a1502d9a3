package intgen

import (
	"net"
	"sync/atomic"
	"time"
)

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = 1<<sequenceBits - 1
	maxMachineID = 1<<machineIDBits - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

// 2020-01-01 00:00:00 UTC
var snowflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type SnowflakeOptions struct {
	// 机器 ID，为 nil 时取本机 IPv4 地址低两字节
	MachineID *int64 `cfg:"machineID"`
}

// SnowflakeGenerator 0 | 41 位毫秒时间戳 | 10 位机器 ID | 12 位序列号
type SnowflakeGenerator struct {
	// 高位为时间戳，低 12 位为序列号
	state     atomic.Int64
	machineID int64
	now       func() int64
}

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) *SnowflakeGenerator {
	machineID := int64(-1)
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	}
	if machineID < 0 {
		machineID = machineIDFromIP()
	}

	g := &SnowflakeGenerator{
		machineID: machineID & maxMachineID,
		now:       func() int64 { return time.Now().UnixMilli() - snowflakeEpoch },
	}
	g.state.Store(g.now() << sequenceBits)
	return g
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip := ipnet.IP.To4(); ip != nil {
			return int64(ip[2])<<8 | int64(ip[3])
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	for {
		old := g.state.Load()
		ts, seq := old>>sequenceBits, old&maxSequence

		now := g.now()
		switch {
		case now > ts:
			ts, seq = now, 0
		default:
			// 时钟回拨时沿用上一个时间戳
			seq = (seq + 1) & maxSequence
			if seq == 0 {
				for now <= ts {
					now = g.now()
				}
				ts = now
			}
		}

		if g.state.CompareAndSwap(old, ts<<sequenceBits|seq) {
			return ts<<timestampShift | g.machineID<<machineIDShift | seq
		}
	}
}

// ParseSnowflake 拆分 ID 为时间、机器 ID 和序列号
func ParseSnowflake(id int64) (time.Time, int64, int64) {
	ts := id >> timestampShift
	return time.UnixMilli(ts + snowflakeEpoch), (id >> machineIDShift) & maxMachineID, id & maxSequence
}
