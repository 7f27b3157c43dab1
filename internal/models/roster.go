package models

import "time"

// RosterEntry associates a student with a teacher. A student may belong to many teachers.
type RosterEntry struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TeacherEmail string    `gorm:"size:255;not null;uniqueIndex:idx_roster_pair" json:"teacher_email"`
	StudentEmail string    `gorm:"size:255;not null;uniqueIndex:idx_roster_pair;index" json:"student_email"`
	CreatedAt    time.Time `json:"created_at"`
}
