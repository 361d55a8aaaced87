package capture

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/RecoveryAshes/tippmixwatch/internal/utils"
)

// ResourceGate 浏览器启动前的内存闸门
// 每轮启动全新Chromium,机器内存不够时宁可跳过一轮也不把系统打爆
type ResourceGate struct {
	// minFreeBytes 启动浏览器所需的最小可用内存
	minFreeBytes uint64
}

func NewResourceGate(minFreeMB int) *ResourceGate {
	if minFreeMB <= 0 {
		minFreeMB = 512
	}
	return &ResourceGate{minFreeBytes: uint64(minFreeMB) * 1024 * 1024}
}

// CanLaunchBrowser 判断当前可用内存是否够启动一个浏览器实例
// 读取失败时放行,监控故障不应阻断采集
func (g *ResourceGate) CanLaunchBrowser() (bool, string) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		utils.Debugf("获取系统内存失败,跳过内存检查: %v", err)
		return true, ""
	}
	if vmStat.Available < g.minFreeBytes {
		return false, fmt.Sprintf("可用内存 %dMB 低于下限 %dMB",
			vmStat.Available/1024/1024, g.minFreeBytes/1024/1024)
	}
	return true, ""
}
