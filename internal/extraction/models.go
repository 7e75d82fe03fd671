package extraction

import "time"

const (
	UpdateProgress      = "progress"
	UpdateFrameAccepted = "frame_accepted"
	UpdateFrameRejected = "frame_rejected"
	UpdateComplete      = "complete"
	UpdateError         = "error"
	UpdateCancelled     = "cancelled"
)

const (
	StatusExtracting = "extracting"
	StatusComplete   = "complete"
	StatusError      = "error"
	StatusCancelled  = "cancelled"
)

const (
	RejectDuplicate    = "duplicate"
	RejectEncodeFailed = "encode_failed"
)

type Update struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (u Update) terminal() bool {
	switch u.Type {
	case UpdateComplete, UpdateError, UpdateCancelled:
		return true
	}
	return false
}

type ProgressEvent struct {
	SessionID   string  `json:"session_id"`
	Sample      int     `json:"sample"`
	Total       int     `json:"total"`
	Percent     float64 `json:"percent"`
	Timestamp   float64 `json:"timestamp"`
	Similarity  float64 `json:"similarity"`
	StableCount int     `json:"stable_count"`
	Message     string  `json:"message"`
}

type FrameAcceptedEvent struct {
	SessionID  string  `json:"session_id"`
	Index      int     `json:"index"`
	FrameID    uint64  `json:"frame_id"`
	Timestamp  float64 `json:"timestamp"`
	ImageRef   string  `json:"image_ref"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Similarity float64 `json:"similarity"`
}

type FrameRejectedEvent struct {
	SessionID  string  `json:"session_id"`
	Timestamp  float64 `json:"timestamp"`
	Reason     string  `json:"reason"`
	Similarity float64 `json:"similarity"`
	Error      string  `json:"error,omitempty"`
}

type CompleteEvent struct {
	SessionID string        `json:"session_id"`
	VideoID   string        `json:"video_id"`
	Slides    int           `json:"slides"`
	Samples   int           `json:"samples"`
	Elapsed   time.Duration `json:"elapsed"`
	Message   string        `json:"message"`
}

type ErrorEvent struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type CancelledEvent struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}
