package gamify

// FreezeCreditCostXP is the XP price of one purchased freeze credit.
const FreezeCreditCostXP = 150

// LevelFloor returns the cumulative XP at which the given level starts.
// Level 1 starts at 0; each level costs 100 XP more than the previous one.
func LevelFloor(level int) int {
	if level <= 1 {
		return 0
	}
	return 50 * level * (level - 1)
}

// LevelForXP returns the level a user with the given total XP holds.
func LevelForXP(total int) int {
	if total < 0 {
		return 1
	}
	level := 1
	for LevelFloor(level+1) <= total {
		level++
	}
	return level
}

// LevelProgress describes where a total sits inside its level.
type LevelProgress struct {
	Level     int
	IntoLevel int
	ToNext    int
}

// ProgressForXP computes level, XP accumulated inside the level, and XP
// remaining to the next level.
func ProgressForXP(total int) LevelProgress {
	if total < 0 {
		total = 0
	}
	level := LevelForXP(total)
	floor := LevelFloor(level)
	next := LevelFloor(level + 1)
	return LevelProgress{
		Level:     level,
		IntoLevel: total - floor,
		ToNext:    next - total,
	}
}
