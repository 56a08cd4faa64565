package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	maxTitleLength   = 300
	maxContentLength = 50000
	maxTags          = 10
	maxTagLength     = 50
	maxQueryLength   = 500
	maxEnrollBatch   = 500
)

var validate = validator.New()

// ValidateID checks that id is a UUID. what names the id in the error.
func ValidateID(what, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid " + what + " format")
	}
	return nil
}

// ValidateTitle validates a thread title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateContent validates thread or comment content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateTags validates thread tags.
func ValidateTags(tags []string) error {
	if len(tags) > maxTags {
		return errors.New("too many tags")
	}
	for _, t := range tags {
		if strings.TrimSpace(t) == "" || utf8.RuneCountInString(t) > maxTagLength {
			return errors.New("invalid tag")
		}
	}
	return nil
}

// ValidateQuery validates a search query.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return errors.New("search query is required")
	}
	if utf8.RuneCountInString(q) > maxQueryLength {
		return errors.New("search query exceeds maximum length")
	}
	return nil
}

// ValidateCourse validates a new course's code and name.
func ValidateCourse(code, name string) error {
	if err := validate.Var(strings.TrimSpace(code), "required,max=32"); err != nil {
		return errors.New("course code is required and at most 32 characters")
	}
	if err := validate.Var(strings.TrimSpace(name), "required,max=200"); err != nil {
		return errors.New("course name is required and at most 200 characters")
	}
	return nil
}

// ValidateEmails validates a batch of addresses to enroll.
func ValidateEmails(emails []string) error {
	if len(emails) == 0 {
		return errors.New("at least one email is required")
	}
	if len(emails) > maxEnrollBatch {
		return fmt.Errorf("at most %d emails per request", maxEnrollBatch)
	}
	for _, e := range emails {
		if err := validate.Var(strings.TrimSpace(e), "required,email"); err != nil {
			return fmt.Errorf("invalid email %q", e)
		}
	}
	return nil
}
