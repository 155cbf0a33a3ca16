package intgen

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

type SnowflakeOptions struct {
	// MachineID 为 nil 时从本机 IP 推断
	MachineID *int64 `cfg:"machineID"`
}

// Snowflake 与序列名无关的全局唯一 id
// 64 位：1 位符号 + 41 位毫秒时间戳 + 10 位机器 id + 12 位毫秒内序号
type Snowflake struct {
	state     int64 // 高 52 位时间戳，低 12 位序号
	machineID int64
	epoch     int64
}

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = (1 << sequenceBits) - 1
	maxMachineID = (1 << machineIDBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

var snowflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func NewSnowflakeWithOptions(options *SnowflakeOptions) *Snowflake {
	var machineID int64
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	} else {
		machineID = machineIDFromIP()
	}

	return &Snowflake{
		state:     (time.Now().UnixMilli() - snowflakeEpoch) << sequenceBits,
		machineID: machineID & maxMachineID,
		epoch:     snowflakeEpoch,
	}
}

// machineIDFromIP 取第一个非回环 IPv4 地址的低两个字节
func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2])<<8 | int64(ipv4[3])
			}
		}
	}
	return 0
}

func (g *Snowflake) Next(ctx context.Context, sequence string) (any, error) {
	return g.Generate(), nil
}

func (g *Snowflake) Generate() int64 {
	for {
		old := atomic.LoadInt64(&g.state)
		oldTimestamp := old >> sequenceBits
		oldSequence := old & maxSequence

		now := time.Now().UnixMilli() - g.epoch
		timestamp, seq := now, int64(0)
		if now <= oldTimestamp {
			// 同一毫秒或时钟回拨，沿用上次的时间戳
			timestamp = oldTimestamp
			seq = (oldSequence + 1) & maxSequence
			if seq == 0 {
				for now <= oldTimestamp {
					now = time.Now().UnixMilli() - g.epoch
				}
				timestamp = now
			}
		}

		if atomic.CompareAndSwapInt64(&g.state, old, timestamp<<sequenceBits|seq) {
			return timestamp<<timestampShift | g.machineID<<machineIDShift | seq
		}
	}
}
