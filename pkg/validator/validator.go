package validator

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
)

const (
	minEmailLength    = 3
	maxEmailLength    = 255
	maxProjectIDLen   = 128
	maxProjectNameLen = 255
	maxFileNameLen    = 255
	maxUserIDLen      = 255
	maxContentTypeLen = 255
	asciiControlStart = 32
	asciiDelete       = 127

	// ReservedStagingID names the staging area for images uploaded before their
	// project exists. It is never a project id.
	ReservedStagingID = "temp"

	errEmailLengthFmt          = "email must be between %d and %d characters"
	errEmailInvalidFmt         = "invalid email format"
	errProjectIDEmptyFmt       = "project id cannot be empty"
	errProjectIDMaxLengthFmt   = "project id must not exceed %d characters"
	errProjectIDInvalidFmt     = "project id may only contain letters, digits, '-' and '_'"
	errProjectIDReservedFmt    = "project id %q is reserved"
	errProjectNameMaxLengthFmt = "project name must not exceed %d characters"
	errFileNameEmptyFmt        = "file name cannot be empty"
	errFileNameMaxLengthFmt    = "file name must not exceed %d characters"
	errFileNamePathSepFmt      = "file name cannot contain path separators"
	errFileNameControlCharsFmt = "file name cannot contain control characters"
	errUserIDEmptyFmt          = "user id cannot be empty"
	errUserIDMaxLengthFmt      = "user id must not exceed %d characters"
	errUserIDControlCharsFmt   = "user id cannot contain control characters"
	errContentTypeEmptyFmt     = "content type cannot be empty"
	errContentTypeMaxLengthFmt = "content type must not exceed %d characters"
	errContentTypeInvalidFmt   = "invalid content type"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	projectIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Email accepts an empty address; identity providers do not always share one.
func Email(email string) error {
	if email == "" {
		return nil
	}

	if len(email) < minEmailLength || len(email) > maxEmailLength {
		return fmt.Errorf(errEmailLengthFmt, minEmailLength, maxEmailLength)
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf(errEmailInvalidFmt)
	}

	return nil
}

// ProjectID checks an id that becomes both a KV key suffix and a blob path segment.
func ProjectID(id string) error {
	if id == "" {
		return fmt.Errorf(errProjectIDEmptyFmt)
	}

	if len(id) > maxProjectIDLen {
		return fmt.Errorf(errProjectIDMaxLengthFmt, maxProjectIDLen)
	}

	if !projectIDRegex.MatchString(id) {
		return fmt.Errorf(errProjectIDInvalidFmt)
	}

	if id == ReservedStagingID {
		return fmt.Errorf(errProjectIDReservedFmt, id)
	}

	return nil
}

func ProjectName(name string) error {
	if len(name) > maxProjectNameLen {
		return fmt.Errorf(errProjectNameMaxLengthFmt, maxProjectNameLen)
	}

	return nil
}

func FileName(name string) error {
	if name == "" {
		return fmt.Errorf(errFileNameEmptyFmt)
	}

	if len(name) > maxFileNameLen {
		return fmt.Errorf(errFileNameMaxLengthFmt, maxFileNameLen)
	}

	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf(errFileNamePathSepFmt)
	}

	if hasControlChars(name) {
		return fmt.Errorf(errFileNameControlCharsFmt)
	}

	return nil
}

func UserID(id string) error {
	if id == "" {
		return fmt.Errorf(errUserIDEmptyFmt)
	}

	if len(id) > maxUserIDLen {
		return fmt.Errorf(errUserIDMaxLengthFmt, maxUserIDLen)
	}

	if hasControlChars(id) {
		return fmt.Errorf(errUserIDControlCharsFmt)
	}

	return nil
}

func ContentType(contentType string) error {
	if contentType == "" {
		return fmt.Errorf(errContentTypeEmptyFmt)
	}

	if len(contentType) > maxContentTypeLen {
		return fmt.Errorf(errContentTypeMaxLengthFmt, maxContentTypeLen)
	}

	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		return fmt.Errorf(errContentTypeInvalidFmt)
	}

	return nil
}

func hasControlChars(s string) bool {
	for _, char := range s {
		if char < asciiControlStart || char == asciiDelete {
			return true
		}
	}
	return false
}
