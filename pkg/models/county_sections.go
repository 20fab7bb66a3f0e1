package models

import (
	"strings"
	"time"
)

// ObligationStatus is the stored status of a legal obligation. Overdue is
// never stored; it is derived from the due date.
type ObligationStatus string

const (
	ObligationPending    ObligationStatus = "Pending"
	ObligationInProgress ObligationStatus = "In Progress"
	ObligationCompleted  ObligationStatus = "Completed"
	ObligationOverdue    ObligationStatus = "Overdue"
)

// Obligation is a statutory requirement a county must meet by a due date.
type Obligation struct {
	ID          string           `json:"id" db:"id"`
	CountyID    string           `json:"countyId" db:"county_id"`
	LawName     string           `json:"lawName" db:"law_name"`
	Description string           `json:"description" db:"description"`
	DueDate     time.Time        `json:"dueDate" db:"due_date"`
	Status      ObligationStatus `json:"status" db:"status"`
	UpdatedAt   time.Time        `json:"updatedAt" db:"updated_at"`
}

// EffectiveStatus reports Overdue for open obligations past their due date.
func (o *Obligation) EffectiveStatus(now time.Time) ObligationStatus {
	if o.Status != ObligationCompleted && now.After(o.DueDate) {
		return ObligationOverdue
	}
	return o.Status
}

// FileType is the kind of document a county form is stored as.
type FileType string

const (
	FileTypePDF FileType = "PDF"
	FileTypeDOC FileType = "DOC"
	FileTypeXLS FileType = "XLS"
)

// FileTypeFromName maps a file extension to a FileType.
func FileTypeFromName(name string) (FileType, bool) {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return "", false
	}
	switch strings.ToLower(name[i+1:]) {
	case "pdf":
		return FileTypePDF, true
	case "doc", "docx":
		return FileTypeDOC, true
	case "xls", "xlsx":
		return FileTypeXLS, true
	}
	return "", false
}

// ContentType returns the MIME type used when serving the file.
func (f FileType) ContentType() string {
	switch f {
	case FileTypePDF:
		return "application/pdf"
	case FileTypeDOC:
		return "application/msword"
	case FileTypeXLS:
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}

// Form is a document a county downloads, fills in or uploads.
type Form struct {
	ID          string    `json:"id" db:"id"`
	CountyID    string    `json:"countyId" db:"county_id"`
	Name        string    `json:"name" db:"name"`
	FileType    FileType  `json:"fileType" db:"file_type"`
	ObjectKey   string    `json:"-" db:"object_key"`
	SizeBytes   int64     `json:"sizeBytes" db:"size_bytes"`
	UploadedBy  string    `json:"uploadedBy" db:"uploaded_by"`
	LastUpdated time.Time `json:"lastUpdated" db:"last_updated"`
}

// ReminderStatus tracks a reminder through the queue.
type ReminderStatus string

const (
	ReminderQueued ReminderStatus = "queued"
	ReminderSent   ReminderStatus = "sent"
	ReminderFailed ReminderStatus = "failed"
)

// Reminder is one reminder e-mail for one assignee of a task.
type Reminder struct {
	ID        string         `json:"id" db:"id"`
	TaskID    string         `json:"taskId" db:"task_id"`
	Recipient string         `json:"recipient" db:"recipient"`
	Subject   string         `json:"subject" db:"subject"`
	Status    ReminderStatus `json:"status" db:"status"`
	MessageID string         `json:"messageId,omitempty" db:"message_id"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
	SentAt    *time.Time     `json:"sentAt,omitempty" db:"sent_at"`
}
