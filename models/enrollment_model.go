package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EnrollmentPending   = "pending"
	EnrollmentEnrolled  = "enrolled"
	EnrollmentCompleted = "completed"
	EnrollmentCancelled = "cancelled"
	EnrollmentRefunded  = "refunded"
)

// Enrollment is unique per (user, course); a cancelled or refunded row is reused
// by the next purchase attempt.
type Enrollment struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	Status     string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	PaymentID  *uuid.UUID `gorm:"type:uuid" json:"payment_id"`
	EnrolledAt *time.Time `json:"enrolled_at"`
	// SeatHeld is true while this enrollment counts toward Course.CurrentStudents.
	SeatHeld bool `gorm:"not null;default:false" json:"-"`

	Course *Course `gorm:"foreignkey:CourseID" json:"course,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// Blocking reports whether the enrollment prevents a new purchase of the same course.
func (e *Enrollment) Blocking() bool {
	return e.Status == EnrollmentEnrolled || e.Status == EnrollmentCompleted
}
