package dto

// EnqueueRequest represents a manual scheduling trigger for one campaign
type EnqueueRequest struct {
	UUID    string `json:"-"`
	OwnerID uint   `json:"-"`
}

// EnqueueResponse reports how many messages the trigger produced
type EnqueueResponse struct {
	Message   string `json:"message"`
	Scheduled int    `json:"scheduled"`
}

// DrainQueueRequest represents a manual dispatch trigger
type DrainQueueRequest struct {
	BatchSize int `json:"batch_size" validate:"omitempty,min=1,max=500"`
}

// DrainQueueResponse reports per-batch dispatch counts
type DrainQueueResponse struct {
	Message   string `json:"message"`
	Claimed   int    `json:"claimed"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Requeued  int    `json:"requeued"`
	Reclaimed int64  `json:"reclaimed"`
}

// QueueStatsResponse exposes queue depth and suppression size
type QueueStatsResponse struct {
	Pending         int64 `json:"pending"`
	Processing      int64 `json:"processing"`
	Sent            int64 `json:"sent"`
	Failed          int64 `json:"failed"`
	SuppressionSize int64 `json:"suppression_size"`
}

// AddSuppressionRequest represents a manual do-not-send entry
type AddSuppressionRequest struct {
	Email  string `json:"email" validate:"required,email,max=320"`
	Reason string `json:"reason" validate:"omitempty,max=512"`
}

// AddSuppressionResponse reports whether the entry was inserted
type AddSuppressionResponse struct {
	Message string `json:"message"`
	Added   bool   `json:"added"`
}

// ListSuppressionsRequest pages through the do-not-send list
type ListSuppressionsRequest struct {
	Page  int `json:"page" validate:"omitempty,min=1"`
	Limit int `json:"limit" validate:"omitempty,min=1,max=200"`
}

// SuppressionDTO represents one do-not-send entry
type SuppressionDTO struct {
	Email     string `json:"email"`
	Reason    string `json:"reason,omitempty"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

// ListSuppressionsResponse lists suppression entries with the total size
type ListSuppressionsResponse struct {
	Message string           `json:"message"`
	Entries []SuppressionDTO `json:"entries"`
	Total   int64            `json:"total"`
}
