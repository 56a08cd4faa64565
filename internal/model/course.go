package model

import "time"

// Course groups threads and enrollments. Only its creator manages it.
type Course struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCourseRequest is the request to create a course.
type CreateCourseRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CourseResponse wraps a single course.
type CourseResponse struct {
	Course *Course `json:"course"`
}

// EnrollRequest lists the email addresses to enroll as students.
type EnrollRequest struct {
	Emails []string `json:"emails"`
}

// EnrollResponse reports how many addresses were newly enrolled. Addresses
// already in the course keep their role and count as skipped.
type EnrollResponse struct {
	Enrolled int `json:"enrolled"`
	Skipped  int `json:"skipped"`
}
