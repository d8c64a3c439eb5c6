package urgency

import (
	"fmt"
	"time"

	"carecall-monitor/internal/models"
)

// Level 紧急度等级（Rank 越小越紧急）
type Level int

const (
	LevelRed Level = iota
	LevelYellow
	LevelGreen
	LevelGray
)

// String 返回等级名称
func (l Level) String() string {
	switch l {
	case LevelRed:
		return "Red"
	case LevelYellow:
		return "Yellow"
	case LevelGreen:
		return "Green"
	default:
		return "Gray"
	}
}

// Rank 排序用序号：Red=0, Yellow=1, Green=2, Gray=3
func (l Level) Rank() int {
	return int(l)
}

// Settings 紧急度阈值配置（分钟），允许运行时修改，每次分类时读取
type Settings struct {
	GreenMinutes  int `json:"green_minutes"`
	YellowMinutes int `json:"yellow_minutes"`
	RedMinutes    int `json:"red_minutes"`
}

// DefaultSettings 默认阈值
func DefaultSettings() Settings {
	return Settings{GreenMinutes: 3, YellowMinutes: 5, RedMinutes: 7}
}

// Validate 校验阈值：0 < green < yellow < red
func (s Settings) Validate() error {
	if s.GreenMinutes <= 0 || s.GreenMinutes >= s.YellowMinutes || s.YellowMinutes >= s.RedMinutes {
		return fmt.Errorf("invalid urgency settings: require 0 < green(%d) < yellow(%d) < red(%d)",
			s.GreenMinutes, s.YellowMinutes, s.RedMinutes)
	}
	return nil
}

// Classify 纯函数：根据已等待时间与优先级计算紧急度
//  1. Emergency 永远是 Red，与等待时间无关
//  2. 其余按已等待分钟数对照阈值：>= red → Red；>= yellow → Yellow；>= green → Green；否则 Gray
//  3. StaffAssist 不低于 Yellow（Gray/Green 提升为 Yellow）
//
// 紧急度不落库，每次读取时重新计算，阈值跨越前后的两次读取结果不同属预期行为
func Classify(elapsed time.Duration, priority int, settings Settings) Level {
	if priority == models.CallTypeEmergency.Priority() {
		return LevelRed
	}

	minutes := elapsed.Minutes()
	var level Level
	switch {
	case minutes >= float64(settings.RedMinutes):
		level = LevelRed
	case minutes >= float64(settings.YellowMinutes):
		level = LevelYellow
	case minutes >= float64(settings.GreenMinutes):
		level = LevelGreen
	default:
		level = LevelGray
	}

	if priority == models.CallTypeStaffAssist.Priority() && (level == LevelGray || level == LevelGreen) {
		level = LevelYellow
	}

	return level
}
