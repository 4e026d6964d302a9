package model

import "time"

// TimeCapsule は未来の自分に宛てたメッセージを表す。
// DeliveryDateは作成後に変更されない。
type TimeCapsule struct {
	ID           string
	UserID       string
	Message      string
	DeliveryDate time.Time
	// IsDelivered と DeliveredAt は記録用のフィールドで、開封判定には使わない。
	IsDelivered bool
	DeliveredAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsUnlocked は指定時刻にカプセルが開封済み（閲覧可能）かを返す。
func (c *TimeCapsule) IsUnlocked(now time.Time) bool {
	return !now.Before(c.DeliveryDate)
}

// TimeRemaining は開封までの残り時間を日・時間・分に分解したもの。
type TimeRemaining struct {
	Days    int
	Hours   int
	Minutes int
}

// RemainingUntilUnlock は開封までの残り時間を返す。開封済みの場合はnilを返す。
func (c *TimeCapsule) RemainingUntilUnlock(now time.Time) *TimeRemaining {
	if c.IsUnlocked(now) {
		return nil
	}
	d := c.DeliveryDate.Sub(now)
	return &TimeRemaining{
		Days:    int(d / (24 * time.Hour)),
		Hours:   int((d % (24 * time.Hour)) / time.Hour),
		Minutes: int((d % time.Hour) / time.Minute),
	}
}
