package models

// 生成状态（所有可生成实体共用）
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CanTransition 校验状态迁移是否合法。
// 终态（completed/failed）只能通过新的生成请求回到 processing，
// 不允许直接回退到 pending。
func CanTransition(from, to string) bool {
	switch from {
	case "":
		return to == StatusPending || to == StatusProcessing
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusProcessing
	}
	return false
}
