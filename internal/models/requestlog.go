package models

import "time"

// Represents one proxied request recorded by the gateway
type RequestLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	RequestID      string    `gorm:"size:64;index" json:"request_id"`
	Method         string    `gorm:"size:10" json:"method"`
	Path           string    `gorm:"size:512;index" json:"path"`
	StatusCode     int       `gorm:"index" json:"status_code"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ClientKey      string    `gorm:"size:128" json:"client_key"`
	IPAddress      string    `gorm:"size:64" json:"ip_address"`
	UserAgent      string    `gorm:"size:256" json:"user_agent"`
	Upstream       string    `gorm:"size:64" json:"upstream,omitempty"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
