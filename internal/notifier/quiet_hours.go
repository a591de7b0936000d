package notifier

import "time"

// quietHoursLayout 安静时段的时间格式（"HH:MM"）
const quietHoursLayout = "15:04"

// inQuietHours 判断 now 是否落在安静时段内
// start/end 是 "HH:MM" 格式的本地时间，tzName 是 IANA 时区名。
// 时段按分钟粒度比较，包含两端：22:00–08:00 表示 [22:00,24:00) ∪ [00:00,08:00]。
// end < start 表示跨午夜。start 或 end 解析失败视为未配置（不安静）。
// 时区无法加载时回退 UTC。
func inQuietHours(now time.Time, start, end, tzName string) bool {
	startTime, err := time.Parse(quietHoursLayout, start)
	if err != nil {
		return false
	}
	endTime, err := time.Parse(quietHoursLayout, end)
	if err != nil {
		return false
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()
	s := startTime.Hour()*60 + startTime.Minute()
	e := endTime.Hour()*60 + endTime.Minute()

	if s <= e {
		return cur >= s && cur <= e
	}

	// 跨午夜：[start,24:00) ∪ [00:00,end]
	return cur >= s || cur <= e
}
